package reconcile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/asso-tools/assobot/internal/models"
)

// Identity is one user present on the external platform
type Identity struct {
	Handle  string
	Display string
	Groups  []models.ExternalRoleGroup
}

// Directory lists the users of the external platform with their groups
type Directory interface {
	Identities(ctx context.Context) ([]Identity, error)
}

// StaticDirectory is a directory snapshot held in memory
type StaticDirectory struct {
	identities []Identity
	byHandle   map[string]string
}

type directoryFile struct {
	Groups []struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"groups"`
	Users []struct {
		Handle  string   `yaml:"handle"`
		Display string   `yaml:"display"`
		Groups  []string `yaml:"groups"`
	} `yaml:"users"`
}

// NewStaticDirectory creates a directory over identities
func NewStaticDirectory(identities []Identity) *StaticDirectory {
	d := &StaticDirectory{identities: identities, byHandle: make(map[string]string, len(identities))}
	for _, id := range identities {
		d.byHandle[strings.ToLower(id.Handle)] = id.Handle
	}
	return d
}

// ParseDirectory reads a yaml directory snapshot
func ParseDirectory(data []byte) (*StaticDirectory, error) {
	var file directoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse directory: %w", err)
	}

	names := make(map[string]string, len(file.Groups))
	for _, g := range file.Groups {
		names[g.ID] = g.Name
	}

	identities := make([]Identity, 0, len(file.Users))
	for _, u := range file.Users {
		if u.Handle == "" {
			return nil, fmt.Errorf("failed to parse directory: user without handle")
		}
		id := Identity{Handle: u.Handle, Display: u.Display}
		for _, gid := range u.Groups {
			id.Groups = append(id.Groups, models.ExternalRoleGroup{ID: gid, Name: names[gid]})
		}
		identities = append(identities, id)
	}
	return NewStaticDirectory(identities), nil
}

// LoadDirectory reads a yaml directory snapshot from path
func LoadDirectory(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	return ParseDirectory(data)
}

// Identities returns the snapshot as loaded
func (d *StaticDirectory) Identities(context.Context) ([]Identity, error) {
	return d.identities, nil
}

// LookupHandle recognises tokens naming a directory user, case-insensitively,
// with or without a leading "@".
func (d *StaticDirectory) LookupHandle(_ context.Context, token string) (string, bool, error) {
	handle, ok := d.byHandle[strings.ToLower(strings.TrimPrefix(token, "@"))]
	return handle, ok, nil
}
