package classify

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/leaf-doctor/pkg/types"
)

//go:embed diseases.yaml
var diseasesYAML []byte

// Info is the advice attached to a disease class.
type Info struct {
	Cause      []string `yaml:"cause"`
	Precaution []string `yaml:"precaution"`
	Cure       []string `yaml:"cure"`
}

// KnowledgeBase maps class identifiers to advice.
type KnowledgeBase map[string]Info

// ParseKnowledgeBase reads a YAML knowledge base.
func ParseKnowledgeBase(data []byte) (KnowledgeBase, error) {
	kb := KnowledgeBase{}
	if err := yaml.Unmarshal(data, &kb); err != nil {
		return nil, fmt.Errorf("failed to parse knowledge base: %w", err)
	}
	return kb, nil
}

var builtin = func() KnowledgeBase {
	kb, err := ParseKnowledgeBase(diseasesYAML)
	if err != nil {
		panic(err)
	}
	return kb
}()

// Builtin returns the embedded knowledge base.
func Builtin() KnowledgeBase { return builtin }

// Lookup returns the advice for class. Classes without an entry get empty,
// non-nil lists so they serialize as [] rather than null.
func (kb KnowledgeBase) Lookup(class string) Info {
	info := kb[class]
	if info.Cause == nil {
		info.Cause = []string{}
	}
	if info.Precaution == nil {
		info.Precaution = []string{}
	}
	if info.Cure == nil {
		info.Cure = []string{}
	}
	return info
}

// Enrich fills the advice lists of d from the knowledge base.
func (kb KnowledgeBase) Enrich(d *types.Diagnosis) {
	info := kb.Lookup(d.Class)
	d.Cause = info.Cause
	d.Precaution = info.Precaution
	d.Cure = info.Cure
}
