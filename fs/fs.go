// Package appfs embeds the static files shipped with every binary: SQL migrations, email templates and assets.
package appfs

import "embed"

//go:embed migrations/*.sql assets
var FS embed.FS

const (
	MigrationsDir     = "migrations"
	EmailTemplatesDir = "assets/templates/email"
	CommonPasswords   = "assets/common-passwords.txt.gz"
)
