package security

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Function names checked by the access gate.
const (
	FunctionViewFact = "viewThreatIntelFact"
	FunctionAddFact  = "addThreatIntelFact"
)

// AccessController answers permission questions for a subject.
type AccessController interface {
	// Validate fails with ErrAuthenticationFailed if the subject is unknown.
	Validate(subject uuid.UUID) error
	// HasPermission reports whether the subject holds fn in any organization.
	HasPermission(subject uuid.UUID, fn string) (bool, error)
	// HasOrganizationPermission reports whether the subject holds fn for org.
	HasOrganizationPermission(subject uuid.UUID, fn string, org uuid.UUID) (bool, error)
}

// Grant is a set of functions held for one organization.
type Grant struct {
	Organization uuid.UUID `yaml:"organization"`
	Functions    []string  `yaml:"functions"`
}

// Subject is one entry of the access-control file.
type Subject struct {
	ID     uuid.UUID `yaml:"id"`
	Name   string    `yaml:"name"`
	Grants []Grant   `yaml:"grants"`
}

// ConfigAccessController is an AccessController backed by a static list of
// subjects, usually read from a YAML file.
type ConfigAccessController struct {
	mu       sync.RWMutex
	subjects map[uuid.UUID]map[uuid.UUID]map[string]struct{}
	names    map[uuid.UUID]string
}

type accessFile struct {
	Subjects []Subject `yaml:"subjects"`
}

// NewConfigAccessController builds a controller from subjects.
func NewConfigAccessController(subjects []Subject) *ConfigAccessController {
	c := &ConfigAccessController{}
	c.load(subjects)
	return c
}

// LoadConfigAccessController reads subjects from a YAML file.
func LoadConfigAccessController(path string) (*ConfigAccessController, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read access control file: %w", err)
	}
	var f accessFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse access control file %s: %w", path, err)
	}
	for i, s := range f.Subjects {
		if s.ID == uuid.Nil {
			return nil, fmt.Errorf("access control file %s: subject #%d has no id", path, i)
		}
	}
	return NewConfigAccessController(f.Subjects), nil
}

func (c *ConfigAccessController) load(subjects []Subject) {
	grants := make(map[uuid.UUID]map[uuid.UUID]map[string]struct{}, len(subjects))
	names := make(map[uuid.UUID]string, len(subjects))
	for _, s := range subjects {
		byOrg, ok := grants[s.ID]
		if !ok {
			byOrg = make(map[uuid.UUID]map[string]struct{})
			grants[s.ID] = byOrg
		}
		names[s.ID] = s.Name
		for _, g := range s.Grants {
			fns, ok := byOrg[g.Organization]
			if !ok {
				fns = make(map[string]struct{})
				byOrg[g.Organization] = fns
			}
			for _, fn := range g.Functions {
				fns[fn] = struct{}{}
			}
		}
	}

	c.mu.Lock()
	c.subjects = grants
	c.names = names
	c.mu.Unlock()
}

// SubjectName returns the configured display name of a subject.
func (c *ConfigAccessController) SubjectName(subject uuid.UUID) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.names[subject]
}

func (c *ConfigAccessController) Validate(subject uuid.UUID) error {
	_, err := c.grants(subject)
	return err
}

func (c *ConfigAccessController) HasPermission(subject uuid.UUID, fn string) (bool, error) {
	byOrg, err := c.grants(subject)
	if err != nil {
		return false, err
	}
	for _, fns := range byOrg {
		if _, ok := fns[fn]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (c *ConfigAccessController) HasOrganizationPermission(subject uuid.UUID, fn string, org uuid.UUID) (bool, error) {
	byOrg, err := c.grants(subject)
	if err != nil {
		return false, err
	}
	_, ok := byOrg[org][fn]
	return ok, nil
}

func (c *ConfigAccessController) grants(subject uuid.UUID) (map[uuid.UUID]map[string]struct{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byOrg, ok := c.subjects[subject]
	if !ok {
		return nil, fmt.Errorf("%w: unknown subject %s", ErrAuthenticationFailed, subject)
	}
	return byOrg, nil
}
