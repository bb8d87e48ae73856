package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// FileConfig is the optional HCL configuration file. Every attribute is
// optional; environment variables take precedence over file values.
//
//	addr         = ":8080"
//	database_url = env.DATABASE_URL
//
//	blob {
//	  driver = "s3"
//	  bucket = "workforce-documents"
//	}
//
//	notification_default "hr" {
//	  type  = "work_request_pending_hr"
//	  email = true
//	}
type FileConfig struct {
	Addr               *string                   `hcl:"addr,optional"`
	DatabaseURL        *string                   `hcl:"database_url,optional"`
	JWTSecret          *string                   `hcl:"jwt_secret,optional"`
	DataEncryptionKey  *string                   `hcl:"data_encryption_key,optional"`
	FrontendDir        *string                   `hcl:"frontend_dir,optional"`
	MigrationsDir      *string                   `hcl:"migrations_dir,optional"`
	Environment        *string                   `hcl:"environment,optional"`
	PublicURL          *string                   `hcl:"public_url,optional"`
	SeedAdminEmail     *string                   `hcl:"seed_admin_email,optional"`
	RunMigrations      *bool                     `hcl:"run_migrations,optional"`
	RunSeed            *bool                     `hcl:"run_seed,optional"`
	MaxBodyBytes       *int                      `hcl:"max_body_bytes,optional"`
	RateLimitPerMinute *int                      `hcl:"rate_limit_per_minute,optional"`
	MetricsEnabled     *bool                     `hcl:"metrics_enabled,optional"`
	AllowedOrigins     []string                  `hcl:"ws_allowed_origins,optional"`
	Email              *fileEmail                `hcl:"email,block"`
	Blob               *fileBlob                 `hcl:"blob,block"`
	Jobs               *fileJobs                 `hcl:"jobs,block"`
	AccessLog          *fileAccessLog            `hcl:"access_log,block"`
	Notifications      []fileNotificationDefault `hcl:"notification_default,block"`
}

type fileEmail struct {
	Enabled    *bool   `hcl:"enabled,optional"`
	From       *string `hcl:"from,optional"`
	SMTPHost   *string `hcl:"smtp_host,optional"`
	SMTPPort   *int    `hcl:"smtp_port,optional"`
	SMTPUser   *string `hcl:"smtp_user,optional"`
	SMTPUseTLS *bool   `hcl:"smtp_use_tls,optional"`
}

type fileBlob struct {
	Driver    *string `hcl:"driver,optional"`
	Bucket    *string `hcl:"bucket,optional"`
	Region    *string `hcl:"region,optional"`
	Endpoint  *string `hcl:"endpoint,optional"`
	PathStyle *bool   `hcl:"path_style,optional"`
}

type fileJobs struct {
	AllocationExpiry *string `hcl:"allocation_expiry_interval,optional"`
	TaskReminders    *string `hcl:"task_reminder_interval,optional"`
}

type fileAccessLog struct {
	Path  *string `hcl:"path,optional"`
	Level *string `hcl:"level,optional"`
}

type fileNotificationDefault struct {
	Role  string `hcl:"role,label"`
	Type  string `hcl:"type"`
	InApp *bool  `hcl:"in_app,optional"`
	Email *bool  `hcl:"email,optional"`
}

// LoadFile parses an HCL config file. An empty path yields an empty config.
func LoadFile(path string) (FileConfig, error) {
	var out FileConfig
	if strings.TrimSpace(path) == "" {
		return out, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read config file %s: %w", path, err)
	}
	return parseFile(path, src)
}

func parseFile(filename string, src []byte) (FileConfig, error) {
	var out FileConfig
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return out, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	diags = gohcl.DecodeBody(file.Body, evalContext(), &out)
	if diags.HasErrors() {
		return out, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}
	return out, nil
}

// evalContext exposes the process environment as env.NAME.
func evalContext() *hcl.EvalContext {
	vars := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		vars[key] = cty.StringVal(value)
	}
	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{Variables: map[string]cty.Value{"env": env}}
}

func (f *FileConfig) normalize() {
	if f.Email == nil {
		f.Email = &fileEmail{}
	}
	if f.Blob == nil {
		f.Blob = &fileBlob{}
	}
	if f.Jobs == nil {
		f.Jobs = &fileJobs{}
	}
	if f.AccessLog == nil {
		f.AccessLog = &fileAccessLog{}
	}
}

func (f FileConfig) notificationDefaults() []NotificationDefault {
	if len(f.Notifications) == 0 {
		return nil
	}
	out := make([]NotificationDefault, 0, len(f.Notifications))
	for _, block := range f.Notifications {
		out = append(out, NotificationDefault{
			Role:  strings.TrimSpace(block.Role),
			Type:  strings.TrimSpace(block.Type),
			InApp: boolOr(block.InApp, true),
			Email: boolOr(block.Email, false),
		})
	}
	return out
}

func strOr(value *string, fallback string) string {
	if value == nil || *value == "" {
		return fallback
	}
	return *value
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func intOr(value *int, fallback int) int {
	if value == nil {
		return fallback
	}
	return *value
}

// durationOr parses an interval attribute. A malformed value is an error so
// Validate can refuse to start.
func durationOr(name string, value *string, fallback time.Duration) (time.Duration, error) {
	if value == nil || *value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(*value)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", name, err)
	}
	if parsed <= 0 {
		return fallback, fmt.Errorf("%s must be positive", name)
	}
	return parsed, nil
}
