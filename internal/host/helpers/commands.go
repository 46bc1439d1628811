package helpers

import "github.com/sinz/selene/internal/host/services"

// CommandHelper adds console commands owned by a mod.
type CommandHelper struct {
	base
	commands *services.CommandManager
}

// NewCommandHelper creates the command helper for a mod.
func NewCommandHelper(modID string, registry Registry, commands *services.CommandManager) *CommandHelper {
	return &CommandHelper{
		base:     base{modID: modID, registry: registry},
		commands: commands,
	}
}

// Add registers a console command.
func (c *CommandHelper) Add(name, documentation string, callback services.CommandCallback) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.commands.Add(c.modID, name, documentation, callback)
}

// Trigger runs any registered console command.
func (c *CommandHelper) Trigger(name string, args []string) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	return c.commands.Trigger(name, args)
}
