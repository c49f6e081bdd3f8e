package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/keel/internal/tenant/meta"
	"github.com/yanizio/keel/platform"
)

// channelPrefix marks site_config entries that bind a channel.
const channelPrefix = "channel."

// loadSite turns host → *Tenant.  Steps:
//
//  1. Fetch site row.
//  2. Fetch key-value config rows.
//  3. Parse bindings and apply config overrides.
//  4. Open every binding.
func loadSite(ctx context.Context, control *sqlx.DB, host string, opts []platform.Option) (*Tenant, error) {
	// 1. site row
	rec, err := meta.ByHost(ctx, control, host)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, host)
		}
		return nil, fmt.Errorf("tenant: site %s: %w", host, err)
	}

	// 2. key-value config
	cfg, err := meta.ConfigBySite(ctx, control, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("tenant: site_config %s: %w", host, err)
	}

	// 3. bindings
	b, err := platform.ParseBindings([]byte(rec.Bindings))
	if err != nil {
		return nil, fmt.Errorf("tenant: %s: %w", host, err)
	}
	applyConfig(&b, cfg)

	// 4. handles
	opts = append([]platform.Option{platform.WithName(rec.Host)}, opts...)
	h, err := platform.Build(ctx, b, opts...)
	if err != nil {
		return nil, fmt.Errorf("tenant: %s: %w", host, err)
	}
	return &Tenant{Meta: *rec, Config: cfg, handles: h}, nil
}

func applyConfig(b *platform.Bindings, cfg map[string]string) {
	for k, v := range cfg {
		switch {
		case k == "app_key":
			b.AppKey = v
		case strings.HasPrefix(k, channelPrefix) && len(k) > len(channelPrefix):
			if b.Channels == nil {
				b.Channels = map[string]string{}
			}
			b.Channels[strings.TrimPrefix(k, channelPrefix)] = v
		}
	}
}
