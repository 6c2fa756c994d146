package root

import (
	"fmt"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/linlay/agent-webclient/pkg/cli"
	"github.com/linlay/agent-webclient/pkg/client"
	"github.com/linlay/agent-webclient/pkg/frontendtool"
	"github.com/linlay/agent-webclient/pkg/session"
	"github.com/linlay/agent-webclient/pkg/userconfig"
)

const (
	envBaseURL = "AGENT_WEBCLIENT_BASE_URL"
	envToken   = "AGENT_WEBCLIENT_TOKEN"
)

// loadConfig reads the config file, then applies the environment and the
// command line on top of it.
func (f *rootFlags) loadConfig() (*userconfig.Config, error) {
	cfg, err := userconfig.Load()
	if err != nil {
		return nil, err
	}

	overrides := []struct{ key, value string }{
		{"base_url", os.Getenv(envBaseURL)},
		{"access_token", os.Getenv(envToken)},
		{"base_url", f.baseURL},
		{"access_token", f.token},
		{"agent", f.agent},
	}
	for _, o := range overrides {
		if o.value == "" {
			continue
		}
		if err := cfg.Set(o.key, o.value); err != nil {
			return nil, fmt.Errorf("%s: %w", o.key, err)
		}
	}
	return cfg, nil
}

func newClient(cfg *userconfig.Config) (*client.Client, error) {
	timeout, err := cfg.RequestTimeout()
	if err != nil {
		return nil, err
	}

	opts := []client.ClientOption{
		client.WithToken(cfg.AccessToken),
		client.WithTracer(otel.Tracer(AppName)),
	}
	if timeout > 0 {
		opts = append(opts, client.WithTimeout(timeout))
	}
	return client.NewClient(cfg.BaseURL, opts...)
}

// newEngine builds an engine against the configured platform. The configured
// agent, if any, starts out locked.
func newEngine(cfg *userconfig.Config, opts ...session.Opt) (*session.Engine, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}

	opts = append([]session.Opt{
		session.WithToolPolicy(frontendtool.PolicyByName(cfg.GetSettings().ToolPolicy)),
	}, opts...)
	eng := session.New(session.FromClient(c), opts...)
	if cfg.Agent != "" {
		eng.LockAgent(cfg.Agent)
	}
	return eng, nil
}

// newPrinterEngine wires a Printer as every surface of the engine.
func newPrinterEngine(cfg *userconfig.Config, out *cli.Printer) (*session.Engine, error) {
	return newEngine(cfg,
		session.WithSurface(out),
		session.WithObserver(out),
		session.WithToolSurface(out),
		session.WithActionHost(out),
	)
}
