package app

import "github.com/superapp/partnerauth/pkg/obs"

// TracingConfig converts the tracing settings into exporter options.
func (c MonitoringConfig) TracingConfig(version string) obs.TracingConfig {
	return obs.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		Endpoint:    c.Tracing.Endpoint,
		Insecure:    c.Tracing.Insecure,
		ServiceName: c.Tracing.ServiceName,
		Version:     version,
		Environment: c.Tracing.Environment,
	}
}
