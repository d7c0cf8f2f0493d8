package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/chatkit-demo/internal/catalog"
	"github.com/soyeahso/chatkit-demo/internal/domain"
	"github.com/soyeahso/chatkit-demo/internal/hooks"
	"github.com/soyeahso/chatkit-demo/internal/store"
)

// newHookManager returns a hook manager with the configured command hooks
// registered.
func newHookManager() *hooks.Manager {
	hm := hooks.NewManager(log)
	for event, entries := range cfg.Hooks.ByEvent() {
		for i, e := range entries {
			name := fmt.Sprintf("config:%s[%d]", event, i)
			hm.On(event, name, hooks.Command(e.Command, time.Duration(e.Timeout)*time.Millisecond))
		}
	}
	return hm
}

// openStore opens the configured conversation store. The returned close
// function is always safe to call.
func openStore() (store.Store, func() error, error) {
	if cfg.Store.Backend == "memory" {
		log.Debug().Msg("using in-memory conversation store")
		return store.NewMemoryStore(), func() error { return nil }, nil
	}

	path := cfg.Store.Path
	if path == "" {
		if err := paths.EnsureDirs(); err != nil {
			return nil, nil, fmt.Errorf("creating data dir: %w", err)
		}
		path = paths.Database()
	}
	db, err := store.Open(path, log)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	log.Debug().Str("path", path).Msg("using SQLite conversation store")
	return store.NewSQLiteStore(db), db.Close, nil
}

// loadCatalog returns the agents from config, or the demo defaults.
func loadCatalog() (*catalog.Static, error) {
	return catalog.FromConfig(cfg.Agents)
}

// findAgent resolves an agent by UUID or case-insensitive name. An empty
// ref picks the first agent.
func findAgent(cat *catalog.Static, ref string) (domain.AgentProfile, error) {
	agents := cat.Agents()
	if len(agents) == 0 {
		return domain.AgentProfile{}, fmt.Errorf("no agents configured")
	}
	if ref == "" {
		return agents[0], nil
	}
	if id, err := uuid.Parse(ref); err == nil {
		if a, ok := cat.Lookup(id); ok {
			return a, nil
		}
	}
	for _, a := range agents {
		if strings.EqualFold(a.Name, ref) {
			return a, nil
		}
	}
	return domain.AgentProfile{}, fmt.Errorf("agent %q not found", ref)
}
