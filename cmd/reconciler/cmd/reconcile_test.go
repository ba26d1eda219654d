package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"card-reconciliation-service/cmd/reconciler/config"
	"card-reconciliation-service/internal/store/sqlite"
	"card-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const settlementsCSV = `id,company_cnpj,operadora,bandeira,data_venda,valor_bruto,taxa_percentual,taxa_valor,valor_liquido
ct-1,12345678000190,Stone,visa,2024-03-01,100.00,2.50,2.50,97.50
ct-2,12345678000190,Cielo,master,2024-03-01,200.00,3.50,7.00,193.00
ct-3,12345678000190,Rede,elo,2024-03-04,50.00,,,48.55
ct-4,12345678000190,Rede,elo,not-a-date,50.00,,,48.55
`

const statementsCSV = `id;company_cnpj;data_movimento;tipo;valor;descricao
bs-1;12345678000190;03/03/2024;credito;97,50;STONE
bs-2;12345678000190;2024-03-03;credito;193,00;CIELO
bs-3;12345678000190;2024-03-05;debito;-30,00;TARIFA
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	return path
}

// resetViper clears every binding and points the store at a fresh SQLite file.
func resetViper(t *testing.T) string {
	t.Helper()
	viper.Reset()
	configErr = nil
	config.SetDefaults(viper.GetViper())

	dsn := filepath.Join(t.TempDir(), "recon.db")
	viper.Set("database.driver", "sqlite")
	viper.Set("database.dsn", dsn)
	viper.Set("log.level", "error")
	t.Cleanup(viper.Reset)
	return dsn
}

func runCommand(t *testing.T, preRun, run func(*cobra.Command, []string) error) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	if err := preRun(cmd, nil); err != nil {
		return out.String(), err
	}
	err := run(cmd, nil)
	return out.String(), err
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := writeFile(t, tmpDir, "valid.csv", "test")

	tests := []struct {
		name     string
		filePath string
		category errors.ErrorCategory
	}{
		{"valid file", validFile, ""},
		{"empty path", "", errors.CategoryValidation},
		{"non-existent file", "/non/existent/file.csv", errors.CategoryFile},
		{"directory instead of file", tmpDir, errors.CategoryFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "test file")
			if tt.category == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			rerr, ok := errors.AsReconcilerError(err)
			if !ok || rerr.Category != tt.category {
				t.Errorf("expected a %s error, got %v", tt.category, err)
			}
		})
	}
}

func TestValidateReconcileFlags(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name          string
		setupFlags    func()
		expectError   bool
		errorContains string
	}{
		{
			name:       "defaults",
			setupFlags: func() {},
		},
		{
			name: "company and json output",
			setupFlags: func() {
				viper.Set("reconcile.company_cnpj", " 12345678000190 ")
				viper.Set("reconcile.output_format", "json")
				viper.Set("reconcile.output_file", filepath.Join(tmpDir, "summary.json"))
			},
		},
		{
			name: "invalid output format",
			setupFlags: func() {
				viper.Set("reconcile.output_format", "xml")
			},
			expectError:   true,
			errorContains: "invalid output format",
		},
		{
			name: "output directory does not exist",
			setupFlags: func() {
				viper.Set("reconcile.output_file", "/non/existent/dir/summary.json")
			},
			expectError:   true,
			errorContains: "output directory does not exist",
		},
		{
			name: "company cnpj too long",
			setupFlags: func() {
				viper.Set("reconcile.company_cnpj", strings.Repeat("1", 33))
			},
			expectError:   true,
			errorContains: "cannot exceed 32 characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			tt.setupFlags()

			err := validateReconcileFlags(&cobra.Command{}, []string{})

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("expected error to contain '%s', got: %v", tt.errorContains, err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	t.Run("company cnpj is trimmed", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		viper.Set("reconcile.company_cnpj", " 12345678000190 ")
		if err := validateReconcileFlags(&cobra.Command{}, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if companyCNPJ != "12345678000190" || outputFormat != "console" {
			t.Errorf("unexpected flags: cnpj=%q format=%q", companyCNPJ, outputFormat)
		}
	})
}

func TestValidateImportFlags(t *testing.T) {
	tmpDir := t.TempDir()
	settlements := writeFile(t, tmpDir, "vendas.csv", settlementsCSV)

	tests := []struct {
		name          string
		setupFlags    func()
		errorContains string
	}{
		{
			name:       "settlements only",
			setupFlags: func() { viper.Set("import.settlements", []string{settlements}) },
		},
		{
			name:          "no files",
			setupFlags:    func() {},
			errorContains: "at least one of --settlements or --statements is required",
		},
		{
			name:          "missing statement file",
			setupFlags:    func() { viper.Set("import.statements", []string{filepath.Join(tmpDir, "missing.csv")}) },
			errorContains: "statement file 1 does not exist",
		},
		{
			name: "negative max errors",
			setupFlags: func() {
				viper.Set("import.settlements", []string{settlements})
				viper.Set("import.max_errors", -1)
			},
			errorContains: "max errors cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			tt.setupFlags()

			err := validateImportFlags(&cobra.Command{}, nil)
			if tt.errorContains == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("expected error containing %q, got %v", tt.errorContains, err)
			}
		})
	}
}

func TestImportAndReconcile(t *testing.T) {
	dsn := resetViper(t)
	dir := t.TempDir()
	viper.Set("import.settlements", []string{writeFile(t, dir, "vendas.csv", settlementsCSV)})
	viper.Set("import.statements", []string{writeFile(t, dir, "extrato.csv", statementsCSV)})
	viper.Set("import.output_format", "json")

	out, err := runCommand(t, validateImportFlags, runImport)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}

	var imported struct {
		Imports []struct {
			Kind     string `json:"kind"`
			Inserted int    `json:"inserted"`
			Rejected int    `json:"rejected"`
		} `json:"imports"`
	}
	if err := json.Unmarshal([]byte(out), &imported); err != nil {
		t.Fatalf("invalid import report: %v\n%s", err, out)
	}
	if len(imported.Imports) != 2 {
		t.Fatalf("expected two import results, got %+v", imported.Imports)
	}
	if imported.Imports[0].Kind != "settlements" || imported.Imports[0].Inserted != 3 || imported.Imports[0].Rejected != 1 {
		t.Errorf("unexpected settlement import: %+v", imported.Imports[0])
	}
	if imported.Imports[1].Kind != "statements" || imported.Imports[1].Inserted != 3 {
		t.Errorf("unexpected statement import: %+v", imported.Imports[1])
	}

	summaryFile := filepath.Join(dir, "summary.json")
	viper.Set("reconcile.output_format", "json")
	viper.Set("reconcile.output_file", summaryFile)

	if _, err := runCommand(t, validateReconcileFlags, runReconcile); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	data, err := os.ReadFile(summaryFile)
	if err != nil {
		t.Fatalf("summary not written: %v", err)
	}
	var summary map[string]interface{}
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("invalid summary: %v\n%s", err, data)
	}
	want := map[string]interface{}{
		"success":                true,
		"transactions_processed": 3.0,
		"reconciled":             2.0,
		"validated_fees":         1.0,
		"alerts_created":         2.0,
		"not_found_alerts":       1.0,
	}
	for k, v := range want {
		if summary[k] != v {
			t.Errorf("%s = %v, want %v", k, summary[k], v)
		}
	}

	st, err := sqlite.Open(dsn)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer st.Close()
	s, err := st.GetSettlement(context.Background(), "ct-1")
	if err != nil {
		t.Fatalf("get settlement: %v", err)
	}
	if !s.Reconciled || s.ReceivedOn == nil || s.ReceivedOn.Format("2006-01-02") != "2024-03-03" {
		t.Errorf("expected ct-1 reconciled on 2024-03-03, got %+v", s)
	}

	t.Run("second run only sees the unmatched settlement", func(t *testing.T) {
		viper.Set("reconcile.output_file", "")
		out, err := runCommand(t, validateReconcileFlags, runReconcile)
		if err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		var again map[string]interface{}
		if err := json.Unmarshal([]byte(out), &again); err != nil {
			t.Fatalf("invalid summary: %v\n%s", err, out)
		}
		if again["transactions_processed"] != 1.0 || again["reconciled"] != 0.0 {
			t.Errorf("unexpected second summary: %v", again)
		}
	})

	t.Run("reimport skips existing rows", func(t *testing.T) {
		viper.Set("import.output_format", "csv")
		out, err := runCommand(t, validateImportFlags, runImport)
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 3 || !strings.HasPrefix(lines[1], "settlements,") || !strings.Contains(lines[1], ",0,3,1") {
			t.Errorf("unexpected csv report:\n%s", out)
		}
	})
}

func TestReconcile_MissingDSN(t *testing.T) {
	resetViper(t)
	viper.Set("database.dsn", "")

	_, err := runCommand(t, validateReconcileFlags, runReconcile)
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Code != errors.CodeMissingConfig {
		t.Fatalf("expected a missing configuration error, got %v", err)
	}
	if rerr.GetExitCode() != 4 {
		t.Errorf("expected exit code 4, got %d", rerr.GetExitCode())
	}
}

func TestImport_ParseFailureStillReports(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	viper.Set("import.statements", []string{writeFile(t, dir, "extrato.csv", "id,valor\nbs-1,10.00\n")})

	out, err := runCommand(t, validateImportFlags, runImport)
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Category != errors.CategoryParse {
		t.Fatalf("expected a parse error for the missing columns, got %v", err)
	}
	if !strings.Contains(out, "IMPORT REPORT") {
		t.Errorf("expected the report to be printed before failing:\n%s", out)
	}
}

func TestCommandHelp(t *testing.T) {
	tests := []struct {
		cmd      *cobra.Command
		sections []string
	}{
		{reconcileCmd, []string{"Usage:", "Examples:", "--company-cnpj", "--output-format", "--output-file", "--prefetch"}},
		{importCmd, []string{"Usage:", "Examples:", "--settlements", "--statements", "--max-errors", "data_venda"}},
		{serveCmd, []string{"Usage:", "/reconcile-card", "--addr", "--allowed-origins"}},
		{generateCmd, []string{"Usage:", "Examples:", "--seed", "--not-found", "--delimiter"}},
	}

	for _, tt := range tests {
		t.Run(tt.cmd.Name(), func(t *testing.T) {
			var help bytes.Buffer
			tt.cmd.SetOut(&help)
			defer tt.cmd.SetOut(nil)
			tt.cmd.Help()

			for _, section := range tt.sections {
				if !strings.Contains(help.String(), section) {
					t.Errorf("help text should contain '%s'", section)
				}
			}
		})
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	for _, name := range []string{"serve", "reconcile", "import", "generate", "version"} {
		t.Run(name, func(t *testing.T) {
			found, _, err := rootCmd.Find([]string{name})
			if err != nil || found.Name() != name {
				t.Errorf("subcommand %s not registered: %v", name, err)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2024-03-01")
	defer SetVersionInfo("dev", "unknown", "unknown")

	var out bytes.Buffer
	versionCmd.SetOut(&out)
	defer versionCmd.SetOut(nil)
	versionCmd.Run(versionCmd, nil)

	if !strings.Contains(out.String(), "reconciler 1.2.3") {
		t.Errorf("unexpected version output: %s", out.String())
	}
	if getVersionString() != "1.2.3" {
		t.Errorf("unexpected version string: %s", getVersionString())
	}
}

func TestCLIErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		exitCode int
		contains []string
	}{
		{"nil", nil, 0, nil},
		{
			"missing configuration",
			errors.ConfigurationError(errors.CodeMissingConfig, "database.dsn", nil, fmt.Errorf("database.dsn is required")),
			4,
			[]string{"missing required configuration: database.dsn", "setting: database.dsn", "RECONCILER_DATABASE_DSN"},
		},
		{
			"persistence",
			errors.PersistenceError(errors.CodeWriteFailed, "insert alerts", fmt.Errorf("disk I/O error")),
			7,
			[]string{"insert alerts", "Store error help"},
		},
		{
			"network",
			errors.NetworkError(errors.CodeConnectionFailed, "postgres", fmt.Errorf("connection refused")),
			6,
			[]string{"connection failed to postgres", "Network error help"},
		},
		{
			"combined errors use the first exit code",
			multierr.Combine(
				errors.PersistenceError(errors.CodeWriteFailed, "insert reconciliations", fmt.Errorf("boom")),
				errors.PersistenceError(errors.CodeWriteFailed, "insert alerts", fmt.Errorf("boom")),
			),
			7,
			[]string{"insert reconciliations", "insert alerts"},
		},
		{"file not found", os.ErrNotExist, 2, []string{"File not found"}},
		{"generic", fmt.Errorf("something odd"), 1, []string{"Error: something odd", "--verbose"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := newCLIErrorHandler(&out, false).HandleError(tt.err)
			if code != tt.exitCode {
				t.Errorf("expected exit code %d, got %d", tt.exitCode, code)
			}
			for _, want := range tt.contains {
				if !strings.Contains(out.String(), want) {
					t.Errorf("expected %q in output:\n%s", want, out.String())
				}
			}
		})
	}
}

func setGenerateFlags(dir string) {
	viper.Set("generate.output_dir", dir)
	viper.Set("generate.count", 40)
	viper.Set("generate.seed", 3)
	viper.Set("generate.company_cnpj", "12345678000190")
	viper.Set("generate.start_date", "2024-03-01")
	viper.Set("generate.days", 10)
	viper.Set("generate.not_found", 0.2)
	viper.Set("generate.value_divergent", 0.1)
	viper.Set("generate.fee_divergent", 0.1)
	viper.Set("generate.delimiter", ";")
}

func TestValidateGenerateFlags(t *testing.T) {
	tests := []struct {
		name          string
		key           string
		value         interface{}
		errorContains string
	}{
		{"valid", "", nil, ""},
		{"bad start date", "generate.start_date", "01/03/2024", "YYYY-MM-DD"},
		{"long delimiter", "generate.delimiter", ";;", "single character"},
		{"no output dir", "generate.output_dir", "", "output directory is required"},
		{"zero count", "generate.count", 0, "count must be positive"},
		{"share out of range", "generate.not_found", 1.5, "between 0 and 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			setGenerateFlags(t.TempDir())
			if tt.key != "" {
				viper.Set(tt.key, tt.value)
			}

			err := validateGenerateFlags(&cobra.Command{}, nil)
			if tt.errorContains == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorContains) {
				t.Errorf("expected error containing %q, got %v", tt.errorContains, err)
			}
			if re, ok := errors.AsReconcilerError(err); !ok || re.Category != errors.CategoryValidation {
				t.Errorf("expected a validation error, got %v", err)
			}
		})
	}
}

func TestGenerateImportReconcile(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	setGenerateFlags(dir)

	out, err := runCommand(t, validateGenerateFlags, runGenerate)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !strings.Contains(out, "settlements.csv (40 rows)") {
		t.Errorf("unexpected generate output: %s", out)
	}

	viper.Set("import.settlements", []string{filepath.Join(dir, "settlements.csv")})
	viper.Set("import.statements", []string{filepath.Join(dir, "statements.csv")})
	viper.Set("import.output_format", "json")
	out, err = runCommand(t, validateImportFlags, runImport)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	var imported struct {
		Imports []struct {
			Inserted int `json:"inserted"`
			Rejected int `json:"rejected"`
		} `json:"imports"`
	}
	if err := json.Unmarshal([]byte(out), &imported); err != nil {
		t.Fatalf("invalid import report: %v\n%s", err, out)
	}
	if len(imported.Imports) != 2 || imported.Imports[0].Inserted != 40 || imported.Imports[0].Rejected != 0 || imported.Imports[1].Rejected != 0 {
		t.Fatalf("unexpected import: %+v", imported.Imports)
	}

	viper.Set("reconcile.output_format", "json")
	out, err = runCommand(t, validateReconcileFlags, runReconcile)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	var summary map[string]interface{}
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("invalid summary: %v\n%s", err, out)
	}
	reconciled, _ := summary["reconciled"].(float64)
	if summary["transactions_processed"] != 40.0 || reconciled == 0 || reconciled >= 40 {
		t.Errorf("unexpected summary: %v", summary)
	}
}
