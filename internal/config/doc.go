// Package config handles YAML configuration loading with environment
// variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable
// interpolation. A minimal marketd config:
//
//	instance:
//	  id: marketd-1
//	database:
//	  postgres:
//	    host: localhost
//	    name: nftmarket
//	    user: marketd
//	    password: ${MARKETD_DB_PASSWORD}
//	market:
//	  operator: "0x9999999999999999999999999999999999999999"
//	collections:
//	  - address: "0x1234567890123456789012345678901234567890"
//	    premint:
//	      - token_id: 0
//	        owner: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
//
// Everything else falls back to defaults (see defaults.go).
package config
