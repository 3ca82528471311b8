package hostsblock

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coredns/caddy"
	"github.com/coredns/coredns/core/dnsserver"
	"github.com/coredns/coredns/plugin"
	clog "github.com/coredns/coredns/plugin/pkg/log"

	"github.com/aws/aws-sdk-go/aws/session"
	ddbv1 "github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/redis/go-redis/v9"

	"github.com/ipfs/go-datastore"
	badger4 "github.com/ipfs/go-ds-badger4"
	ddbds "github.com/ipfs/go-ds-dynamodb"

	"github.com/ipshipyard/hostrep/hostcheck"
	"github.com/ipshipyard/hostrep/hostlist"
)

const pluginName = "hostsblock"

var log = clog.NewWithPlugin(pluginName)

func init() { plugin.Register(pluginName, setup) }

func setup(c *caddy.Controller) error {
	cfg, err := parse(c)
	if err != nil {
		return plugin.Error(pluginName, err)
	}

	hostlist.InitMetrics()
	initMetrics()

	// One long-lived Service for DNS lookups. Scans get their own.
	svc := hostlist.NewService(cfg.serviceConfig(cfg.Check.CachePeriod))
	hb := &hostsBlock{Service: svc}

	if cfg.ListenAddr != "" {
		api := &apiServer{
			Addr:    cfg.ListenAddr,
			Lookups: svc,
			Scans:   newScanRegistry(cfg),
		}
		c.OnStartup(api.OnStartup)
		c.OnRestart(api.OnReload)
		c.OnFinalShutdown(api.OnFinalShutdown)
		c.OnRestartFailed(api.OnStartup)
	}

	c.OnStartup(func() error {
		// warm the cache without delaying server start
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout+5*time.Second)
			defer cancel()
			if bl, err := svc.Retrieve(ctx); err != nil {
				log.Warningf("initial block list load failed, DNS filtering disabled until reload: %v", err)
			} else {
				log.Infof("block list loaded, %d entries", bl.Len())
			}
		}()
		return nil
	})

	// a reload opens the store again, so release it first
	c.OnRestart(cfg.cache.Close)
	c.OnRestartFailed(cfg.cache.reopen)
	c.OnFinalShutdown(cfg.cache.Close)

	dnsserver.GetConfig(c).AddPlugin(func(next plugin.Handler) plugin.Handler {
		hb.Next = next
		return hb
	})

	return nil
}

// config is the parsed hostsblock block of a Corefile.
type config struct {
	URL          string
	FetchTimeout time.Duration
	ListenAddr   string
	Check        hostcheck.Config

	cache *backend
}

// serviceConfig returns the hostlist settings for a Service with the given
// cache period. All Services share the configured cache.
func (cfg *config) serviceConfig(period time.Duration) hostlist.Config {
	return hostlist.Config{
		URL:          cfg.URL,
		CachePeriod:  period,
		FetchTimeout: cfg.FetchTimeout,
		Cache:        cfg.cache,
	}
}

// parse parses the configuration from the Corefile.
func parse(c *caddy.Controller) (_ *config, err error) {
	/*
		Syntax is:
		hostsblock {
		    [url <list-url>]
		    [cacheperiod <hours>]
		    [checkaffiliates <bool>]
		    [checkcohosts <bool>]
		    [fetch-timeout <duration>]
		    [database-type [...database-args]]
		    [listen-address <address>]
		}

		Databases:
		  - memory (default)
		  - badger <db-path>
		  - dynamo <table-name>
		  - redis <address> [db=<n>] [password-env=<VAR>]
	*/

	cfg := &config{
		URL:          hostlist.ListURL,
		FetchTimeout: hostlist.DefaultFetchTimeout,
	}
	defer func() {
		if err != nil && cfg.cache != nil {
			cfg.cache.Close()
		}
	}()
	checkOpts := make(map[string]string)

	for c.Next() {
		if len(c.RemainingArgs()) != 0 {
			return nil, c.ArgErr()
		}

		for c.NextBlock() {
			switch v := c.Val(); v {
			case "url":
				args := c.RemainingArgs()
				if len(args) != 1 {
					return nil, c.ArgErr()
				}
				cfg.URL = args[0]
			case hostcheck.OptCachePeriod, hostcheck.OptCheckAffiliates, hostcheck.OptCheckCohosts:
				args := c.RemainingArgs()
				if len(args) != 1 {
					return nil, c.ArgErr()
				}
				checkOpts[v] = args[0]
			case "fetch-timeout":
				args := c.RemainingArgs()
				if len(args) != 1 {
					return nil, c.ArgErr()
				}
				d, err := time.ParseDuration(args[0])
				if err != nil {
					return nil, fmt.Errorf("invalid fetch-timeout: %w", err)
				}
				if d <= 0 {
					return nil, fmt.Errorf("fetch-timeout must be positive, got %s", d)
				}
				cfg.FetchTimeout = d
			case "listen-address":
				args := c.RemainingArgs()
				if len(args) != 1 {
					return nil, c.ArgErr()
				}
				cfg.ListenAddr = args[0]
			case "database-type":
				if cfg.cache != nil {
					return nil, fmt.Errorf("database-type given more than once")
				}
				args := c.RemainingArgs()
				if len(args) == 0 {
					return nil, c.ArgErr()
				}
				b, err := openBackend(args[0], args[1:])
				if err != nil {
					return nil, err
				}
				cfg.cache = b
			default:
				return nil, fmt.Errorf("unknown directive: %s", v)
			}
		}
	}

	check, err := hostcheck.ParseOptions(checkOpts)
	if err != nil {
		return nil, err
	}
	cfg.Check = check

	if cfg.cache == nil {
		b, err := openBackend("memory", nil)
		if err != nil {
			return nil, err
		}
		cfg.cache = b
	}

	return cfg, nil
}

// openCache builds the cache for a database-type directive.
func openCache(databaseType string, args []string) (hostlist.Cache, io.Closer, error) {
	switch databaseType {
	case "memory":
		if len(args) != 0 {
			return nil, nil, fmt.Errorf("memory database takes no arguments")
		}
		return hostlist.NewMemoryCache(), nil, nil

	case "badger":
		if len(args) != 1 {
			return nil, nil, fmt.Errorf("need to pass a path for the Badger configuration")
		}
		ds, err := badger4.NewDatastore(args[0], nil)
		if err != nil {
			return nil, nil, err
		}
		return hostlist.NewDatastoreCache(ds), ds, nil

	case "dynamo":
		if len(args) != 1 {
			return nil, nil, fmt.Errorf("need to pass a table name for the DynamoDB configuration")
		}
		ddbClient := ddbv1.New(session.Must(session.NewSession()))
		var ds datastore.Datastore = ddbds.New(ddbClient, args[0])
		return hostlist.NewDatastoreCache(ds), nil, nil

	case "redis":
		if len(args) == 0 {
			return nil, nil, fmt.Errorf("need to pass an address for the Redis configuration")
		}
		opts := &redis.Options{Addr: args[0]}
		for _, arg := range args[1:] {
			kv := strings.SplitN(arg, "=", 2)
			if len(kv) != 2 {
				return nil, nil, fmt.Errorf("invalid option: %s (expected key=value)", arg)
			}
			k, v := kv[0], kv[1]
			switch k {
			case "db":
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, nil, fmt.Errorf("invalid redis db: %w", err)
				}
				opts.DB = n
			case "password-env":
				opts.Password = os.Getenv(v)
			default:
				return nil, nil, fmt.Errorf("unknown redis option: %s", k)
			}
		}
		client := redis.NewClient(opts)
		return hostlist.NewRedisCache(client), client, nil

	default:
		return nil, nil, fmt.Errorf("unknown database type: %s", databaseType)
	}
}
