package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/uploaduser/internal/application"
	"github.com/JonMunkholm/uploaduser/internal/config"
	"github.com/JonMunkholm/uploaduser/internal/core"
	"github.com/JonMunkholm/uploaduser/internal/csvsource"
	"github.com/JonMunkholm/uploaduser/internal/logging"
	"github.com/JonMunkholm/uploaduser/internal/tracker"
)

// uploadFlags holds the command line of one upload.
type uploadFlags struct {
	file       string
	delimiter  string
	encoding   string
	debugLevel string
	preview    bool
	rows       int
	policy     core.PolicyOptions
}

func newRootCommand() *cobra.Command {
	f := &uploadFlags{policy: core.DefaultPolicyOptions()}

	cmd := &cobra.Command{
		Use:   "uploaduser --file users.csv [flags]",
		Short: "Create, update, rename and delete users from a CSV file",
		Long: `uploaduser reads a delimited file whose header names user fields
(username, email, firstname, lastname, ...) and reconciles every row against
the user directory under the chosen import mode.

Connection settings come from the environment (DATABASE_URL and friends);
a .env file in the working directory is loaded first.`,
		Example: `  uploaduser --file users.csv
  uploaduser --file users.csv --mode=createorupdate --updatemode=dataonly
  uploaduser --file - --delimiter=semicolon --encoding=iso-8859-1 < users.csv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpload(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.file, "file", "f", "", "CSV file to upload, - for stdin")
	flags.StringVarP(&f.delimiter, "delimiter", "d", "comma", "field delimiter: comma, semicolon, colon, tab or a single character")
	flags.StringVarP(&f.encoding, "encoding", "e", "utf-8", "file encoding: auto, utf-8, utf-16, utf-16le, utf-16be, iso-8859-1, windows-1252")
	flags.BoolVar(&f.preview, "preview", false, "print what the upload would do as JSON and write nothing")
	flags.IntVar(&f.rows, "previewrows", core.DefaultPreviewRows, "rows listed by --preview")
	flags.StringVar(&f.debugLevel, "debuglevel", "", "debug output: none, low, verbose (default from LOG_LEVEL)")

	flags.StringVarP(&f.policy.Mode, "mode", "m", f.policy.Mode, "import mode: createnew, createall, createorupdate, update")
	flags.StringVarP(&f.policy.UpdateMode, "updatemode", "u", f.policy.UpdateMode, "update mode: nothing, dataonly, dataordefaults, missingonly")
	flags.StringVarP(&f.policy.PasswordMode, "passwordmode", "p", f.policy.PasswordMode, "new user password: generate, field")
	flags.StringVar(&f.policy.ForcePasswordChange, "forcepasswordchange", f.policy.ForcePasswordChange, "force password change: none, weak, all")
	flags.BoolVar(&f.policy.UpdatePassword, "updatepassword", f.policy.UpdatePassword, "update passwords of existing users")
	flags.BoolVar(&f.policy.AllowDeletes, "allowdeletes", f.policy.AllowDeletes, "allow rows with deleted=1 to delete users")
	flags.BoolVar(&f.policy.AllowRenames, "allowrenames", f.policy.AllowRenames, "allow rows with oldusername to rename users")
	flags.BoolVar(&f.policy.AllowSuspends, "allowsuspends", f.policy.AllowSuspends, "allow the suspended column to suspend and activate users")
	flags.BoolVar(&f.policy.NoEmailDuplicates, "noemailduplicates", f.policy.NoEmailDuplicates, "reject emails already used by another user")
	flags.BoolVar(&f.policy.Standardise, "standardise", f.policy.Standardise, "standardise usernames (lower case, allowed characters only)")
	flags.StringToStringVar(&f.policy.Defaults, "default", nil, "default value for a column, e.g. --default city=Oslo (repeatable)")

	cmd.AddCommand(newMigrateCommand(), newRunsCommand())
	return cmd
}

// loadConfig reads .env and the environment and sets up stderr logging.
// stdout stays reserved for the report.
func loadConfig(level string) (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if level == "" {
		level = cfg.Logging.Level
	}
	logging.SetupWriter(os.Stderr, level, cfg.Logging.Format)
	return cfg, nil
}

func runUpload(cmd *cobra.Command, f *uploadFlags) error {
	if f.file == "" {
		return errors.New("--file is required")
	}
	level, verbose, err := logging.ParseDebugLevel(f.debugLevel)
	if err != nil {
		return err
	}

	in, name, size, err := openInput(cmd.InOrStdin(), f.file)
	if err != nil {
		return err
	}
	defer in.Close()

	cfg, err := loadConfig(level)
	if err != nil {
		return err
	}

	ctx := core.ContextWithInitiator(cmd.Context(), core.Initiator{Source: "cli"})
	site, res, err := application.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()
	site.Settings.LogRecords = verbose

	csvOpts := csvsource.Options{
		Delimiter: f.delimiter,
		Encoding:  f.encoding,
		Size:      size,
	}
	if f.preview {
		p, err := site.Preview(ctx, in, csvOpts, f.policy, f.rows)
		if err != nil {
			return userError(err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	_, err = site.Upload(ctx, name, in, csvOpts, f.policy, tracker.NewPlain(cmd.OutOrStdout()))
	return userError(err)
}

// userError prefixes err with its operator-facing message and code.
func userError(err error) error {
	if err == nil {
		return nil
	}
	msg := core.MapError(err)
	return fmt.Errorf("%s (%s): %w", msg.Message, msg.Code, err)
}

// openInput opens path, or stdin for "-".
func openInput(stdin io.Reader, path string) (io.ReadCloser, string, int64, error) {
	if path == "-" {
		return io.NopCloser(stdin), "stdin", 0, nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, "", 0, fmt.Errorf("open upload file: %w", err)
	}
	var size int64
	if st, err := fh.Stat(); err == nil {
		size = st.Size()
	}
	return fh, filepath.Base(path), size, nil
}
