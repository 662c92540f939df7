// Package dbseed exposes the genesis reference data applied on first start.
package dbseed

import _ "embed"

// Genesis is the YAML document describing liquidity tiers and markets at genesis.
//
//go:embed genesis.yaml
var Genesis []byte
