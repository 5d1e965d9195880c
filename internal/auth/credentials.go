package auth

import "context"

// StaticCredentials implements Credentials with fixed values, useful for
// automation and tests where no interactive prompt is desired.
type StaticCredentials struct {
	User     string
	Pass     string
	RealmVal string
}

func (c StaticCredentials) Username(ctx context.Context) (string, error) { return c.User, nil }
func (c StaticCredentials) Password(ctx context.Context) (string, error) { return c.Pass, nil }
func (c StaticCredentials) Realm(ctx context.Context) (string, error)    { return c.RealmVal, nil }

// PromptFunc returns a string given a human-readable prompt; CallbackCredentials
// adapts a caller-supplied prompting function (e.g. manifoldco/promptui) to
// the Credentials interface.
type PromptFunc func(prompt string) (string, error)

// CallbackCredentials prompts lazily and caches each answer for the
// lifetime of one handshake.
type CallbackCredentials struct {
	Prompt PromptFunc
	Realm_ string

	username string
	password string
	have     bool
}

func (c *CallbackCredentials) Username(ctx context.Context) (string, error) {
	if err := c.fill(); err != nil {
		return "", err
	}
	return c.username, nil
}

func (c *CallbackCredentials) Password(ctx context.Context) (string, error) {
	if err := c.fill(); err != nil {
		return "", err
	}
	return c.password, nil
}

func (c *CallbackCredentials) Realm(ctx context.Context) (string, error) {
	return c.Realm_, nil
}

func (c *CallbackCredentials) fill() error {
	if c.have {
		return nil
	}
	u, err := c.Prompt("Username")
	if err != nil {
		return err
	}
	p, err := c.Prompt("Password")
	if err != nil {
		return err
	}
	c.username, c.password, c.have = u, p, true
	return nil
}
