package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/dukex/botportal/pkg/models"
	"gopkg.in/yaml.v3"
)

// Seed is the initial state of a sandbox backend, read from a YAML file.
type Seed struct {
	Users []SeedUser `yaml:"users"`
	Bots  []SeedBot  `yaml:"bots"`
}

// SeedUser is a user reachable through a static bearer token.
type SeedUser struct {
	Token       string   `yaml:"token"`
	ID          string   `yaml:"id"`
	Email       string   `yaml:"email"`
	Name        string   `yaml:"name"`
	Role        string   `yaml:"role"`
	AllowedBots []string `yaml:"allowed_bots"`
}

type SeedBot struct {
	ID                 string   `yaml:"id"`
	Name               string   `yaml:"name"`
	Description        string   `yaml:"description"`
	ScriptPath         string   `yaml:"script_path"`
	ScriptArgs         []string `yaml:"script_args"`
	PageSlug           string   `yaml:"page_slug"`
	Icon               string   `yaml:"icon"`
	RequiresUI         bool     `yaml:"requires_ui"`
	SupportsDataInput  bool     `yaml:"supports_data_input"`
	SupportsScheduling *bool    `yaml:"supports_scheduling"`
	Disabled           bool     `yaml:"disabled"`
}

// User converts the entry into a portal user.
func (u SeedUser) User() models.User {
	role, _ := models.ParseRole(u.Role)

	return models.User{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          role,
		AllowedBotIDs: append([]string{}, u.AllowedBots...),
	}
}

// Bot converts the entry into a bot. The id defaults to the page slug.
func (b SeedBot) Bot() models.Bot {
	id := b.ID
	if id == "" {
		id = b.PageSlug
	}

	return models.Bot{
		ID:                 id,
		Name:               b.Name,
		Description:        b.Description,
		RequiresUI:         b.RequiresUI,
		ScriptPath:         b.ScriptPath,
		ScriptArgs:         append([]string{}, b.ScriptArgs...),
		PageSlug:           b.PageSlug,
		Enabled:            !b.Disabled,
		Icon:               models.ParseIcon(b.Icon),
		SupportsDataInput:  b.SupportsDataInput,
		SupportsScheduling: b.SupportsScheduling,
	}
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("failed to parse YAML seed: %w", err)
	}

	if err := ValidateSeed(seed); err != nil {
		return Seed{}, err
	}

	return seed, nil
}

// LoadSeedOrDefault loads path, falling back to DefaultSeed when path is
// empty or does not exist. Malformed files are still an error.
func LoadSeedOrDefault(path string) (Seed, error) {
	if path == "" {
		return DefaultSeed(), nil
	}

	seed, err := LoadSeed(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSeed(), nil
	}

	return seed, err
}

// ValidateSeed checks tokens, roles and slugs.
func ValidateSeed(seed Seed) error {
	if len(seed.Users) == 0 {
		return errors.New("at least one user must be configured")
	}

	tokens := map[string]bool{}

	for i, u := range seed.Users {
		if u.Token == "" {
			return fmt.Errorf("users[%d]: token is required", i)
		}

		if tokens[u.Token] {
			return fmt.Errorf("users[%d]: duplicate token", i)
		}

		tokens[u.Token] = true

		if u.Email == "" {
			return fmt.Errorf("users[%d]: email is required", i)
		}

		if _, err := models.ParseRole(u.Role); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
	}

	slugs := map[string]bool{}
	validate := models.NewValidator()

	for i, b := range seed.Bots {
		if b.Name == "" {
			return fmt.Errorf("bots[%d]: name is required", i)
		}

		if err := validate.Var(b.PageSlug, "required,slug"); err != nil {
			return fmt.Errorf("bots[%d]: page_slug %q is not a valid slug", i, b.PageSlug)
		}

		if slugs[b.PageSlug] {
			return fmt.Errorf("bots[%d]: duplicate page_slug %q", i, b.PageSlug)
		}

		slugs[b.PageSlug] = true
	}

	return nil
}

// DefaultSeed has one user per role and two bots, one of them taking a date
// range input.
func DefaultSeed() Seed {
	return Seed{
		Users: []SeedUser{
			{Token: "superadmin-token", ID: "u-superadmin", Email: "root@botportal.local", Name: "Root", Role: string(models.RoleSuperadmin)},
			{Token: "admin-token", ID: "u-admin", Email: "admin@botportal.local", Name: "Admin", Role: string(models.RoleAdmin)},
			{Token: "user-token", ID: "u-user", Email: "user@botportal.local", Name: "Operator", Role: string(models.RoleUser), AllowedBots: []string{"robot-extraccion-mongo"}},
		},
		Bots: []SeedBot{
			{
				Name:              "Robot Extracción MongoDB",
				Description:       "Extracts audit logs from MongoDB Atlas.",
				ScriptPath:        "/opt/bots/robot-extraccion-mongo/main.py",
				PageSlug:          "robot-extraccion-mongo",
				Icon:              "Database",
				RequiresUI:        true,
				SupportsDataInput: true,
			},
			{
				Name:        "RPA Monitoreo Objetos",
				Description: "Monitors application objects over RDP.",
				ScriptPath:  "/opt/bots/rpa-moni-objetos/main.py",
				PageSlug:    "rpa-moni-objetos",
				Icon:        "Monitor",
			},
		},
	}
}
