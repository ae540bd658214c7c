package manifest

// schemaSource constrains manifest files. Definitions are closed, so an
// unknown key or a value of the wrong type fails validation with the
// position of the offending field.
const schemaSource = `
#Entry: string | {
	method:                  string
	push_pop?:               bool
	log_if_nothing_patched?: bool
	log_if_missing?:         bool
}

#Mod: {
	name?:                     string
	system_rand?:              [...#Entry]
	system_rand_ctor?:         [...#Entry]
	unity_rand?:               [...#Entry]
	push_pop?:                 [...#Entry]
	current_map?:              [...#Entry]
	cancel_in_interface?:      [...#Entry]
	cancel_in_interface_true?: [...#Entry]
	cancel_if_unsafe?:         [...#Entry]
}

#Audit: {
	enabled?:             bool
	excluded_namespaces?: [...string]
	workers?:             int & >=0
	replace?:             bool
	log?:                 bool
}

#Manifest: {
	mods?: [string]: #Mod
	audit?: #Audit
}
`
