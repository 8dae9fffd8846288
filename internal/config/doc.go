// Package config provides configuration parsing for the switchmap command.
//
// The configuration is stored in switchmap.json (or switchmap.yaml) in the
// working directory. Every field is optional; missing fields take the
// defaults returned by New.
//
// # Configuration File Structure
//
//	{
//	  "shape": "strict",
//	  "log": {
//	    "level": "info",
//	    "format": "text"
//	  },
//	  "server": {
//	    "addr": "localhost:7070"
//	  },
//	  "metrics": {
//	    "enabled": true,
//	    "namespace": "switchmap"
//	  },
//	  "tracing": {
//	    "enabled": false,
//	    "tracer_name": "switchmap"
//	  },
//	  "demo": {
//	    "delay": "50ms"
//	  }
//	}
//
// The SWITCHMAP_ADDR environment variable overrides server.addr.
//
// # Usage
//
//	cfg, err := config.LoadOrDefault(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger := cfg.NewLogger(os.Stderr)
package config
