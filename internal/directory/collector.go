package directory

import (
	"context"
	"errors"
)

var ErrNoServers = errors.New("no dns servers collected")

// Logger is the subset of github.com/apex/log.Interface used here.
type Logger interface {
	Debugf(msg string, v ...any)
	Infof(msg string, v ...any)
	Warnf(msg string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}

// Collector merges the servers of several sources into one deduplicated
// list, in source order.
type Collector struct {
	sources []Source
	logger  Logger
}

func NewCollector(logger Logger, sources ...Source) *Collector {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Collector{sources: sources, logger: logger}
}

// Collect skips sources that fail and only errors when nothing at all was
// collected.
func (c *Collector) Collect(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var servers []string

	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		got, err := src.Servers(ctx)
		if err != nil {
			c.logger.Warnf("collect from %s: %s", src.Name(), err)
			continue
		}
		c.logger.Infof("collected %d servers from %s", len(got), src.Name())

		for _, ip := range got {
			if _, ok := seen[ip]; ok {
				continue
			}
			seen[ip] = struct{}{}
			servers = append(servers, ip)
		}
	}

	if len(servers) == 0 {
		return nil, ErrNoServers
	}

	c.logger.Infof("collected %d unique servers", len(servers))
	return servers, nil
}
