// Package staging reclaims per-item work directories under staging_dir once
// their items reach a terminal stage.
package staging
