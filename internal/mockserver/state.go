package mockserver

import (
	"encoding/json"
	"fmt"

	"github.com/prbarcelon/astrbotctl/internal/protocol"
)

func (s *Server) installPlugin(p protocol.Plugin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Activated = true
	for i := range s.plugins {
		if s.plugins[i].Name == p.Name {
			s.plugins[i] = p
			return
		}
	}
	s.plugins = append(s.plugins, p)
}

func (s *Server) applyAction(name string, action protocol.PluginAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i := range s.plugins {
		if s.plugins[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("plugin %s not found", name)
	}
	switch action {
	case protocol.ActionOn:
		s.plugins[idx].Activated = true
	case protocol.ActionOff:
		s.plugins[idx].Activated = false
	case protocol.ActionReload:
	case protocol.ActionUninstall:
		if s.plugins[idx].Reserved {
			return fmt.Errorf("plugin %s is reserved", name)
		}
		s.plugins = append(s.plugins[:idx], s.plugins[idx+1:]...)
	default:
		return fmt.Errorf("unsupported action %s", action)
	}
	return nil
}

// replayEvents converts the history buffer into live log events. Plain
// text entries become events carrying the text as data.
func (s *Server) replayEvents() []protocol.LiveLogEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.LiveLogEvent, 0, len(s.logs))
	for _, rec := range s.logs {
		if rec.Kind == protocol.LogRecordText {
			out = append(out, protocol.LiveLogEvent{Type: "log", Level: "INFO", Data: rec.Text})
			continue
		}
		var ev protocol.LiveLogEvent
		if err := json.Unmarshal(rec.Raw, &ev); err != nil {
			ev = protocol.LiveLogEvent{Type: "log", Data: rec.RenderLine()}
		}
		out = append(out, ev)
	}
	return out
}

func (s *Server) subscribe() chan protocol.LiveLogEvent {
	ch := make(chan protocol.LiveLogEvent, 16)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan protocol.LiveLogEvent) {
	s.mu.Lock()
	delete(s.subscribers, ch)
	s.mu.Unlock()
}
