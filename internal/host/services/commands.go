package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// CommandCallback handles a console command invocation.
type CommandCallback func(name string, args []string)

// Command is a registered console command.
type Command struct {
	Name          string
	Documentation string
	Owner         string
	Callback      CommandCallback
}

// CommandManager holds console commands added by mods.
type CommandManager struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// NewCommandManager creates an empty command manager.
func NewCommandManager() *CommandManager {
	return &CommandManager{
		commands: make(map[string]*Command),
	}
}

// Add registers a command. Names are case-insensitive and must be unique.
func (cm *CommandManager) Add(owner, name, documentation string, callback CommandCallback) error {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("%w: name %q", ErrInvalidCommand, name)
	}
	if callback == nil {
		return fmt.Errorf("%w: %s has no callback", ErrInvalidCommand, name)
	}

	key := strings.ToLower(name)

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if existing, ok := cm.commands[key]; ok {
		return fmt.Errorf("%w: %s (added by %s)", ErrCommandExists, name, existing.Owner)
	}
	cm.commands[key] = &Command{
		Name:          name,
		Documentation: documentation,
		Owner:         owner,
		Callback:      callback,
	}
	return nil
}

// Get returns a command by name.
func (cm *CommandManager) Get(name string) (*Command, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	cmd, ok := cm.commands[strings.ToLower(name)]
	return cmd, ok
}

// List returns all commands sorted by name.
func (cm *CommandManager) List() []Command {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	list := make([]Command, 0, len(cm.commands))
	for _, cmd := range cm.commands {
		list = append(list, *cmd)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Trigger runs a command. Returns false if no such command exists.
func (cm *CommandManager) Trigger(name string, args []string) (found bool, err error) {
	cmd, ok := cm.Get(name)
	if !ok {
		return false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command %s panicked: %v", cmd.Name, r)
		}
	}()
	cmd.Callback(cmd.Name, args)
	return true, nil
}

// TriggerLine parses a console line into a command name and arguments and runs it.
func (cm *CommandManager) TriggerLine(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	return cm.Trigger(fields[0], fields[1:])
}
