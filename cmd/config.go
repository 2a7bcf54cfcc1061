package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage itrack configuration.

Running bare 'itrack config' is the same as 'itrack config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# itrack configuration
# See: itrack config show (for effective values and sources)

db:
  # Store backend: sqlite or mysql (default: sqlite)
  driver: "{{ .DBDriver }}"

  # SQLite database path (default: ~/.config/itrack/itrack.db)
  path: '{{ .DBPath }}'

  # MySQL connection, used when driver is mysql
  mysql:
    host: "{{ .MySQLHost }}"
    port: {{ .MySQLPort }}
    user: "{{ .MySQLUser }}"
    # password: ""
    database: "{{ .MySQLDatabase }}"

server:
  # Listen port for 'itrack serve' (default: 5000)
  port: {{ .ServerPort }}

# Civil timezone for created_date and last_update (default: Asia/Kolkata)
timezone: "{{ .Timezone }}"

log:
  # debug, info, warn, error (default: info)
  level: "{{ .LogLevel }}"
  # text or json (default: text)
  format: "{{ .LogFormat }}"
  # Rotating log file; empty logs to stderr
  # file: ""
`

type configTemplateData struct {
	DBDriver      string
	DBPath        string
	MySQLHost     string
	MySQLPort     int
	MySQLUser     string
	MySQLDatabase string
	ServerPort    int
	Timezone      string
	LogLevel      string
	LogFormat     string
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		DBDriver:      viper.GetString("db.driver"),
		DBPath:        viper.GetString("db.path"),
		MySQLHost:     viper.GetString("db.mysql.host"),
		MySQLPort:     viper.GetInt("db.mysql.port"),
		MySQLUser:     viper.GetString("db.mysql.user"),
		MySQLDatabase: viper.GetString("db.mysql.database"),
		ServerPort:    viper.GetInt("server.port"),
		Timezone:      viper.GetString("timezone"),
		LogLevel:      viper.GetString("log.level"),
		LogFormat:     viper.GetString("log.format"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "db.driver", EnvVar: "ITRACK_DB_DRIVER"},
	{Key: "db.path", EnvVar: "ITRACK_DB_PATH"},
	{Key: "db.mysql.host", EnvVar: "ITRACK_DB_MYSQL_HOST"},
	{Key: "db.mysql.port", EnvVar: "ITRACK_DB_MYSQL_PORT"},
	{Key: "db.mysql.user", EnvVar: "ITRACK_DB_MYSQL_USER"},
	{Key: "db.mysql.password", EnvVar: "ITRACK_DB_MYSQL_PASSWORD", Secret: true},
	{Key: "db.mysql.database", EnvVar: "ITRACK_DB_MYSQL_DATABASE"},
	{Key: "server.port", EnvVar: "ITRACK_SERVER_PORT"},
	{Key: "timezone", EnvVar: "ITRACK_TIMEZONE"},
	{Key: "log.level", EnvVar: "ITRACK_LOG_LEVEL"},
	{Key: "log.format", EnvVar: "ITRACK_LOG_FORMAT"},
	{Key: "log.file", EnvVar: "ITRACK_LOG_FILE"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Secret && viper.GetString(k.Key) != "" {
			val = "********"
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set, e.g. export EDITOR=vim")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'itrack config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
