package game

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/host"
	"github.com/SokyranTheDragon/Multiplayer-Compatibility/internal/il"
)

// Program is mod code loaded on top of the stock model.
type Program struct {
	// Mod is the package id the program belongs to (e.g. "vanilla.expanded").
	Mod string `yaml:"mod"`

	Types []TypeDecl `yaml:"types"`
}

// TypeDecl declares one type of a program.
type TypeDecl struct {
	// Name is the full type name, "Namespace.Name".
	Name       string       `yaml:"name"`
	Base       string       `yaml:"base,omitempty"`
	Interfaces []string     `yaml:"interfaces,omitempty"`
	Fields     []FieldDecl  `yaml:"fields,omitempty"`
	Methods    []MethodDecl `yaml:"methods,omitempty"`
}

// FieldDecl declares a field.
type FieldDecl struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Static bool   `yaml:"static,omitempty"`
}

// MethodDecl declares a method with an IL body. Name ".ctor" declares a
// constructor; "get_X" and "set_X" declare property accessors.
type MethodDecl struct {
	Name    string   `yaml:"name"`
	Params  []string `yaml:"params,omitempty"`
	Returns string   `yaml:"returns,omitempty"`
	Static  bool     `yaml:"static,omitempty"`
	Virtual bool     `yaml:"virtual,omitempty"`

	// Body is IL text as accepted by host.Assemble.
	Body string `yaml:"body"`
}

// ParseProgram decodes a program, rejecting unknown fields.
func ParseProgram(data []byte) (*Program, error) {
	var p Program
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse program: %w", err)
	}
	if len(p.Types) == 0 {
		return nil, fmt.Errorf("program declares no types")
	}
	return &p, nil
}

// LoadProgramFile reads, parses and loads a program file into reg.
func LoadProgramFile(reg *host.Registry, path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program file: %w", err)
	}
	p, err := ParseProgram(data)
	if err != nil {
		return nil, err
	}
	if err := LoadProgram(reg, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadProgram declares every type of p, then every member, then assembles
// the bodies, so declarations may reference each other in any order.
func LoadProgram(reg *host.Registry, p *Program) error {
	types := make([]*il.Type, len(p.Types))
	for i, decl := range p.Types {
		ns, name := splitTypeName(decl.Name)
		if name == "" {
			return fmt.Errorf("type %d: name is required", i)
		}
		types[i] = &il.Type{Namespace: ns, Name: name}
		if err := reg.AddType(types[i]); err != nil {
			return err
		}
	}

	for i, decl := range p.Types {
		t := types[i]
		if decl.Base != "" {
			base, err := reg.TypeByName(decl.Base)
			if err != nil {
				return fmt.Errorf("type %s: base: %w", decl.Name, err)
			}
			t.Base = base
		}
		for _, name := range decl.Interfaces {
			iface, err := reg.TypeByName(name)
			if err != nil {
				return fmt.Errorf("type %s: interface: %w", decl.Name, err)
			}
			t.Interfaces = append(t.Interfaces, iface)
		}
	}

	var bodies []pendingBody
	for i, decl := range p.Types {
		t := types[i]
		for _, fd := range decl.Fields {
			ft, err := reg.TypeByName(fd.Type)
			if err != nil {
				return fmt.Errorf("field %s:%s: %w", decl.Name, fd.Name, err)
			}
			if err := reg.AddField(&il.Field{Name: fd.Name, DeclaringType: t, FieldType: ft, Static: fd.Static}); err != nil {
				return err
			}
		}
		for _, md := range decl.Methods {
			m, err := declareMethod(reg, t, md)
			if err != nil {
				return fmt.Errorf("method %s:%s: %w", decl.Name, md.Name, err)
			}
			if err := reg.AddMethod(m, host.Body{}); err != nil {
				return err
			}
			bodies = append(bodies, pendingBody{method: m, src: md.Body})
		}
	}

	for _, pb := range bodies {
		code, err := host.Assemble(reg, pb.src)
		if err != nil {
			return fmt.Errorf("method %s: %w", pb.method.Descriptor(), err)
		}
		if _, err := il.StackProfile(code); err != nil {
			return fmt.Errorf("method %s: %w", pb.method.Descriptor(), err)
		}
		if err := reg.SetBody(pb.method, host.Body{Code: code}); err != nil {
			return err
		}
	}
	return nil
}

type pendingBody struct {
	method *il.Method
	src    string
}

func declareMethod(reg *host.Registry, t *il.Type, md MethodDecl) (*il.Method, error) {
	m := &il.Method{
		Name:          md.Name,
		DeclaringType: t,
		Static:        md.Static,
		Virtual:       md.Virtual,
	}
	switch {
	case md.Name == il.ConstructorName:
		m.Kind = il.KindConstructor
	case len(md.Name) > 4 && md.Name[:4] == "get_":
		m.Kind = il.KindGetter
	case len(md.Name) > 4 && md.Name[:4] == "set_":
		m.Kind = il.KindSetter
	}
	for _, name := range md.Params {
		pt, err := reg.TypeByName(name)
		if err != nil {
			return nil, err
		}
		m.Params = append(m.Params, pt)
	}
	if md.Returns != "" && md.Returns != "void" {
		rt, err := reg.TypeByName(md.Returns)
		if err != nil {
			return nil, err
		}
		m.Returns = rt
	}
	return m, nil
}

// splitTypeName splits "A.B.C" into namespace "A.B" and name "C".
func splitTypeName(full string) (ns, name string) {
	for i := len(full) - 1; i >= 0; i-- {
		if full[i] == '.' {
			return full[:i], full[i+1:]
		}
	}
	return "", full
}
