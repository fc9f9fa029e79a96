package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"stepwise/internal/config"
	"stepwise/internal/tool"
)

// Manager connects MCP servers and registers their tools. All servers must
// be attached before the registry is frozen for a run.
type Manager struct {
	clients  map[string]*Client
	registry *tool.Registry
	mu       sync.RWMutex
}

// NewManager creates a new MCP manager
func NewManager(registry *tool.Registry) *Manager {
	return &Manager{
		clients:  make(map[string]*Client),
		registry: registry,
	}
}

// Initialize starts all enabled MCP servers from config. Servers connect
// concurrently. A partial failure returns an error listing the failed
// servers while the others stay registered.
func (m *Manager) Initialize(ctx context.Context, cfg config.MCPConfig) error {
	var servers []config.MCPServerConfig
	names := make(map[string]bool)
	for _, serverCfg := range cfg.Servers {
		if serverCfg.Disabled {
			continue
		}
		if names[serverCfg.Name] {
			return fmt.Errorf("duplicate server name: %s", serverCfg.Name)
		}
		names[serverCfg.Name] = true
		servers = append(servers, serverCfg)
	}
	if len(servers) == 0 {
		return nil
	}

	errs := make([]error, len(servers))
	var wg sync.WaitGroup
	for i, serverCfg := range servers {
		wg.Add(1)
		go func(i int, cfg config.MCPServerConfig) {
			defer wg.Done()
			transport, err := newTransport(cfg)
			if err == nil {
				err = m.Attach(ctx, cfg.Name, transport)
			}
			if err != nil {
				errs[i] = fmt.Errorf("server %s: %w", cfg.Name, err)
			}
		}(i, serverCfg)
	}
	wg.Wait()

	err := errors.Join(errs...)
	if err == nil {
		return nil
	}
	if m.ServerCount() == 0 {
		return fmt.Errorf("all MCP servers failed to initialize: %w", err)
	}
	return fmt.Errorf("some MCP servers failed (loaded %d/%d): %w", m.ServerCount(), len(servers), err)
}

// Attach connects one server over transport and registers its tools as
// <name>_<tool>. If any tool cannot be registered the session is closed.
func (m *Manager) Attach(ctx context.Context, name string, transport mcp.Transport) error {
	client, err := Connect(ctx, name, transport)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.clients[name]; exists {
		client.Close()
		return fmt.Errorf("duplicate server name: %s", name)
	}

	for _, mcpTool := range client.Tools() {
		adapter := NewToolAdapter(client, mcpTool)
		if err := m.registry.Register(adapter); err != nil {
			client.Close()
			return fmt.Errorf("failed to register tool %s: %w", adapter.Name(), err)
		}
	}

	m.clients[name] = client
	return nil
}

// Close shuts down all MCP sessions
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, client := range m.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("server %s: %w", name, err))
		}
	}
	m.clients = make(map[string]*Client)
	return errors.Join(errs...)
}

// ListServers returns the connected server names, sorted
func (m *Manager) ListServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServerCount returns the number of connected servers
func (m *Manager) ServerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}
