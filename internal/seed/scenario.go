// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"instafeed/internal/validation"

	"gopkg.in/yaml.v3"
)

//go:embed scenarios/*.yaml
var scenarioFS embed.FS

// DefaultPassword is used when a scenario does not set one.
const DefaultPassword = "Password123"

// Scenario describes a social graph to load.
type Scenario struct {
	Password string        `yaml:"password"`
	Users    []UserSpec    `yaml:"users"`
	Follows  []FollowSpec  `yaml:"follows"`
	Posts    []PostSpec    `yaml:"posts"`
	Messages []MessageSpec `yaml:"messages"`
	Random   *RandomSpec   `yaml:"random"`
}

type UserSpec struct {
	Username string `yaml:"username"`
	FullName string `yaml:"full_name"`
	Email    string `yaml:"email"`
}

type FollowSpec struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type PostSpec struct {
	Author   string        `yaml:"author"`
	Caption  string        `yaml:"caption"`
	ImageURL string        `yaml:"image_url"`
	HoursAgo int           `yaml:"hours_ago"`
	LikedBy  []string      `yaml:"liked_by"`
	SavedBy  []string      `yaml:"saved_by"`
	Comments []CommentSpec `yaml:"comments"`
}

type CommentSpec struct {
	Author  string      `yaml:"author"`
	Text    string      `yaml:"text"`
	Replies []ReplySpec `yaml:"replies"`
}

type ReplySpec struct {
	Author string `yaml:"author"`
	Text   string `yaml:"text"`
}

type MessageSpec struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Text string `yaml:"text"`
}

// RandomSpec adds generated users on top of the named ones.
type RandomSpec struct {
	Users        int     `yaml:"users"`
	PostsPerUser int     `yaml:"posts_per_user"`
	FollowRatio  float64 `yaml:"follow_ratio"`
	MaxDays      int     `yaml:"max_days"`
}

// LoadScenario reads a scenario file. Names without a path separator or
// extension refer to the built-in scenarios, e.g. "demo".
func LoadScenario(name string) (*Scenario, error) {
	var (
		raw []byte
		err error
	)
	if name == "" {
		name = "demo"
	}
	if strings.ContainsAny(name, `/\`) || strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
		// #nosec G304: path comes from CLI flags in a dev tool
		raw, err = os.ReadFile(name)
	} else {
		raw, err = scenarioFS.ReadFile("scenarios/" + name + ".yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("load scenario %q: %w", name, err)
	}
	return ParseScenario(raw)
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(raw []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if sc.Password == "" {
		sc.Password = DefaultPassword
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks that every reference names a declared user.
func (sc *Scenario) Validate() error {
	if err := validation.ValidatePassword(sc.Password); err != nil {
		return fmt.Errorf("scenario password: %w", err)
	}

	known := make(map[string]bool, len(sc.Users))
	for _, u := range sc.Users {
		if err := validation.ValidateUsername(u.Username); err != nil {
			return fmt.Errorf("user %q: %w", u.Username, err)
		}
		if known[u.Username] {
			return fmt.Errorf("user %q declared twice", u.Username)
		}
		known[u.Username] = true
	}

	ref := func(what, name string) error {
		if !known[name] {
			return fmt.Errorf("%s: unknown user %q", what, name)
		}
		return nil
	}

	for _, f := range sc.Follows {
		if err := ref("follow", f.From); err != nil {
			return err
		}
		if err := ref("follow", f.To); err != nil {
			return err
		}
		if f.From == f.To {
			return fmt.Errorf("follow: %q cannot follow themselves", f.From)
		}
	}
	for i, p := range sc.Posts {
		what := fmt.Sprintf("post %d", i)
		if err := ref(what, p.Author); err != nil {
			return err
		}
		for _, name := range append(append([]string{}, p.LikedBy...), p.SavedBy...) {
			if err := ref(what, name); err != nil {
				return err
			}
		}
		for _, c := range p.Comments {
			if err := ref(what+" comment", c.Author); err != nil {
				return err
			}
			for _, r := range c.Replies {
				if err := ref(what+" reply", r.Author); err != nil {
					return err
				}
			}
		}
	}
	for _, m := range sc.Messages {
		if err := ref("message", m.From); err != nil {
			return err
		}
		if err := ref("message", m.To); err != nil {
			return err
		}
		if m.From == m.To {
			return fmt.Errorf("message: %q cannot message themselves", m.From)
		}
	}
	if sc.Random != nil && (sc.Random.FollowRatio < 0 || sc.Random.FollowRatio > 1) {
		return fmt.Errorf("random.follow_ratio must be between 0 and 1")
	}
	return nil
}
