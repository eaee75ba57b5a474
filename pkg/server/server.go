package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/devtree-io/devtree-go/pkg/config"
	"github.com/devtree-io/devtree-go/pkg/connection"
	"github.com/devtree-io/devtree-go/pkg/devicetoken"
	"github.com/devtree-io/devtree-go/pkg/discovery"
	"github.com/devtree-io/devtree-go/pkg/log"
	"github.com/devtree-io/devtree-go/pkg/pathtree"
	"github.com/devtree-io/devtree-go/pkg/persistence"
	"github.com/devtree-io/devtree-go/pkg/plugin"
)

// Lifecycle errors.
var (
	ErrAlreadyStarted = errors.New("server already started")
	ErrNotStarted     = errors.New("server not started")
)

// State is the server lifecycle state.
type State uint8

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Name identifies the server in discovery.
	Name string

	Transport    config.TransportMode
	Listen       string
	TickInterval time.Duration

	Plugins []config.PluginConfig

	// Aliases maps a path to its alias source, a path or a JSON object.
	Aliases map[string]string

	ExternalDevices []config.ExternalDevice
	Discovery       config.Discovery

	// StateFile, if set, stores aliases added with AddRuntimeAlias. They
	// are restored after the configured aliases on the next start.
	StateFile string

	// Token configures every device token plugins create.
	Token devicetoken.Options

	// Logger receives routing events (optional).
	Logger log.Logger

	// Log receives operational output (optional).
	Log *slog.Logger
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Name:         "devtree",
		Transport:    config.TransportLocal,
		Listen:       ":3883",
		TickInterval: 5 * time.Millisecond,
		Token:        devicetoken.DefaultOptions(),
	}
}

// ConfigFrom converts a loaded configuration file.
func ConfigFrom(c *config.Config) (ServerConfig, error) {
	sc := DefaultServerConfig()
	sc.Name = c.Name
	sc.Transport = c.Transport
	sc.Listen = c.Listen
	sc.TickInterval = c.TickInterval.Std()
	sc.Plugins = c.Plugins
	sc.ExternalDevices = c.ExternalDevices
	sc.Discovery = c.Discovery
	sc.StateFile = c.StateFile
	if len(c.Aliases) > 0 {
		sc.Aliases = make(map[string]string, len(c.Aliases))
		for path := range c.Aliases {
			src, err := c.AliasJSON(path)
			if err != nil {
				return sc, err
			}
			sc.Aliases[path] = src
		}
	}
	return sc, nil
}

// Server is the devtree core process.
type Server struct {
	config ServerConfig

	mu         sync.Mutex
	state      State
	ctx        context.Context
	cancel     context.CancelFunc
	conn       *connection.Connection
	shared     *connection.Shared
	plugins    []*plugin.RegistrationContext
	advertiser *discovery.Advertiser
	store      *persistence.StateStore

	treeMu      sync.Mutex
	tree        *pathtree.Tree
	treeChanged bool
	badPaths    []string
}

var _ plugin.Host = (*Server)(nil)

func New(config ServerConfig) *Server {
	def := DefaultServerConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = def.TickInterval
	}
	if config.Transport == "" {
		config.Transport = def.Transport
	}
	if config.Token.SendFinishedTimeout <= 0 {
		config.Token = def.Token
	}
	if config.Token.Logger == nil {
		config.Token.Logger = config.Logger
	}
	if config.Token.Log == nil {
		config.Token.Log = config.Log
	}
	s := &Server{config: config, tree: pathtree.New()}
	if config.StateFile != "" {
		s.store = persistence.NewStateStore(config.StateFile)
	}
	return s
}

func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start opens the connection, loads external devices, plugins and
// aliases, resolves the tree and publishes it. Unresolvable aliases are
// not an error; see BadPaths.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = StateStarting
	s.mu.Unlock()

	if err := s.start(ctx); err != nil {
		s.teardown()
		s.setState(StateIdle)
		return err
	}
	s.setState(StateRunning)
	return nil
}

func (s *Server) start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	connCfg := connection.Config{Logger: s.config.Logger, Log: s.config.Log}
	switch s.config.Transport {
	case config.TransportShared:
		shared, err := connection.NewShared(s.ctx, connection.SharedConfig{
			Address: s.config.Listen,
			Logger:  s.config.Logger,
			Log:     s.config.Log,
		})
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		s.shared = shared
		s.conn = connection.New(shared, connCfg)
		s.debugLog("listening", "addr", shared.Addr().String())
	default:
		s.conn = connection.NewLocalConnection(connCfg)
	}

	for _, d := range s.config.ExternalDevices {
		data, err := d.DescriptorJSON()
		if err != nil {
			return fmt.Errorf("external device %s: %w", d.Path, err)
		}
		if err := s.AddExternalDevice(d.Path, d.Host, d.Port, data); err != nil {
			return err
		}
	}

	opts := plugin.Options{Token: s.config.Token, Log: s.config.Log}
	for _, p := range s.config.Plugins {
		params, err := p.ParamsJSON()
		if err != nil {
			return err
		}
		rc, err := plugin.Load(s.ctx, p.Name, params, s, opts)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.plugins = append(s.plugins, rc)
		s.mu.Unlock()
		s.debugLog("plugin loaded", "plugin", p.Name, "devices", len(rc.Tokens()))
	}

	paths := make([]string, 0, len(s.config.Aliases))
	for path := range s.config.Aliases {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	for _, path := range paths {
		if _, err := s.AddAlias(path, s.config.Aliases[path]); err != nil {
			return err
		}
	}
	if err := s.restoreAliases(); err != nil {
		return err
	}

	if err := s.publishTree("start"); err != nil {
		return err
	}

	if s.shared != nil && s.config.Discovery.Enabled {
		adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{
			Interface: s.config.Discovery.Interface,
			TTL:       discovery.DefaultAdvertiserConfig().TTL,
			Log:       s.config.Log,
		})
		if err := adv.Advertise(discovery.ServerInfo{Name: s.config.Name, Port: s.shared.Port()}); err != nil {
			return fmt.Errorf("advertise: %w", err)
		}
		s.mu.Lock()
		s.advertiser = adv
		s.mu.Unlock()
	}
	return nil
}

// Update runs one mainloop tick.
func (s *Server) Update() error {
	conn := s.Connection()
	if conn == nil {
		return ErrNotStarted
	}
	if err := conn.Process(); err != nil {
		return err
	}

	s.treeMu.Lock()
	changed := s.treeChanged
	s.treeMu.Unlock()
	if changed {
		return s.publishTree("update")
	}
	return nil
}

// Run calls Update every tick interval until ctx ends or Stop is called.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	stopped := s.ctx.Done()
	s.mu.Unlock()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopped:
			return nil
		case <-ticker.C:
			if err := s.Update(); err != nil {
				if errors.Is(err, connection.ErrConnectionClosed) {
					return nil
				}
				s.debugLog("update failed", "error", err)
			}
		}
	}
}

// Stop withdraws the advertisement, unloads plugins in reverse load order
// and closes the connection.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	s.mu.Unlock()

	err := s.teardown()
	s.setState(StateStopped)
	return err
}

func (s *Server) teardown() error {
	s.mu.Lock()
	adv := s.advertiser
	plugins := s.plugins
	conn := s.conn
	cancel := s.cancel
	s.advertiser = nil
	s.plugins = nil
	s.mu.Unlock()

	if adv != nil {
		adv.Stop()
	}
	for i := len(plugins) - 1; i >= 0; i-- {
		plugins[i].Unload()
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Connection returns the connection devices publish on, nil before Start.
func (s *Server) Connection() *connection.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Port returns the shared listen port, 0 for a local server.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shared == nil {
		return 0
	}
	return s.shared.Port()
}

// Plugins returns the names of the loaded plugins in load order.
func (s *Server) Plugins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.plugins))
	for i, p := range s.plugins {
		names[i] = p.PluginName()
	}
	return names
}

// TriggerHardwareDetect runs every plugin's hardware detect callbacks.
// New devices show up in the tree on the next tick.
func (s *Server) TriggerHardwareDetect() error {
	s.mu.Lock()
	plugins := append([]*plugin.RegistrationContext(nil), s.plugins...)
	s.mu.Unlock()

	var errs []error
	for _, p := range plugins {
		if err := p.HardwareDetect(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.PluginName(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Server) debugLog(msg string, args ...any) {
	if s.config.Log != nil {
		s.config.Log.Debug(msg, args...)
	}
}
