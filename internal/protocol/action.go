package protocol

import (
	"fmt"
	"strings"
)

// PluginAction is a plugin state change the backend exposes under
// /api/plugin/{action}.
type PluginAction string

const (
	ActionOn        PluginAction = "on"
	ActionOff       PluginAction = "off"
	ActionReload    PluginAction = "reload"
	ActionUninstall PluginAction = "uninstall"
)

var PluginActions = []PluginAction{ActionOn, ActionOff, ActionReload, ActionUninstall}

func ParsePluginAction(value string) (PluginAction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "enable":
		return ActionOn, nil
	case "off", "disable":
		return ActionOff, nil
	case "reload":
		return ActionReload, nil
	case "uninstall":
		return ActionUninstall, nil
	default:
		return "", fmt.Errorf("unsupported plugin action %q (expected on, off, reload, or uninstall)", value)
	}
}

func (a PluginAction) Valid() bool {
	for _, known := range PluginActions {
		if a == known {
			return true
		}
	}
	return false
}

func (a PluginAction) String() string {
	return string(a)
}
