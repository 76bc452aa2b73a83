package prisma

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ChecklistItem is one reporting requirement in a checklist definition.
type ChecklistItem struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Checklist is a named set of reporting requirements, e.g. PRISMA 2020.
type Checklist struct {
	Name  string          `yaml:"name"`
	Items []ChecklistItem `yaml:"items"`
}

// ParseChecklist decodes a checklist definition from YAML.
func ParseChecklist(data []byte) (*Checklist, error) {
	var cl Checklist
	if err := yaml.Unmarshal(data, &cl); err != nil {
		return nil, eris.Wrap(err, "prisma: parse checklist")
	}
	if len(cl.Items) == 0 {
		return nil, eris.New("prisma: checklist has no items")
	}
	for i, item := range cl.Items {
		if item.Name == "" {
			return nil, eris.Errorf("prisma: checklist item %d has no name", i)
		}
		if item.Description == "" {
			return nil, eris.Errorf("prisma: checklist item %q has no description", item.Name)
		}
	}
	return &cl, nil
}

// LoadChecklist reads and parses a checklist definition file.
func LoadChecklist(path string) (*Checklist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prisma: read checklist %s", path)
	}
	return ParseChecklist(data)
}

// Find returns the item with the given name, or nil.
func (c *Checklist) Find(name string) *ChecklistItem {
	for i := range c.Items {
		if c.Items[i].Name == name {
			return &c.Items[i]
		}
	}
	return nil
}
