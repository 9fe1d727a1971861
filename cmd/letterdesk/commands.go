package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/letterdesk/internal/classifier"
	"github.com/kalambet/letterdesk/internal/config"
	"github.com/kalambet/letterdesk/internal/knowledge"
	"github.com/kalambet/letterdesk/internal/storage"
	"github.com/kalambet/letterdesk/internal/users"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// --- login ---

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in to a running server and print the session id",
	Long: `Log in to a running server and print the session id.

The password is read from --password or, when omitted, from the first line of stdin.

Examples:
  letterdesk login credit@bank.ru --password secret1
  SESSION=$(echo secret1 | letterdesk login credit@bank.ru)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			line, err := readLine(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}
			password = line
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		resp, err := newAPIClient(cfg, "").post(cmd.Context(), "/auth/login", map[string]string{
			"email":    args[0],
			"password": password,
		})
		if err != nil {
			return err
		}
		var result struct {
			SessionID string       `json:"session_id"`
			UserID    int64        `json:"user_id"`
			Role      storage.Role `json:"role"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), result.SessionID)
		printSuccess("Logged in as %s (user %d, %s)", args[0], result.UserID, result.Role)
		return nil
	},
}

func readLine(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimRight(line, "\r"), nil
}

func init() {
	loginCmd.Flags().String("password", "", "account password")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List settable configuration keys",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.ValidKeys() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configKeysCmd)
}

// --- kb ---

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Inspect the knowledge base",
}

func loadRetriever() (*knowledge.Retriever, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return knowledge.NewRetriever(cfg.Knowledge.Dir, nil, cfg.Knowledge.DefaultTopicList()), nil
}

var kbTopicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List knowledge topics and whether their document is present",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := loadRetriever()
		if err != nil {
			return err
		}
		writeTopics(cmd.OutOrStdout(), knowledge.DefaultTopics, r.Available())
		return nil
	},
}

func writeTopics(w io.Writer, all, available []knowledge.Topic) {
	present := make(map[string]bool, len(available))
	for _, t := range available {
		present[t.File] = true
	}
	for _, t := range all {
		mark := colorize(colorRed, "missing")
		if present[t.File] {
			mark = colorize(colorGreen, "ok")
		}
		fmt.Fprintf(w, "  %-14s %-28s %s\n", t.File, t.Name, mark)
	}
}

var kbSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the knowledge text a letter would be drafted with",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := loadRetriever()
		if err != nil {
			return err
		}
		text := r.Retrieve(strings.Join(args, " "))
		if text == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No knowledge documents found.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	},
}

func init() {
	kbCmd.AddCommand(kbTopicsCmd)
	kbCmd.AddCommand(kbSearchCmd)
}

// --- user ---

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage customers and specialists in the local database",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a user",
	Long: `Register a user directly in the database.

Examples:
  letterdesk user add --email credit@bank.ru --name "Анна" --password secret1 \
    --role specialist --specializations "Кредитование,Карты"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := users.Registration{}
		reg.Email, _ = cmd.Flags().GetString("email")
		reg.Name, _ = cmd.Flags().GetString("name")
		reg.Password, _ = cmd.Flags().GetString("password")
		role, _ := cmd.Flags().GetString("role")
		reg.Role = storage.Role(role)
		specs, _ := cmd.Flags().GetString("specializations")
		reg.Specializations = splitList(specs)
		classes, _ := cmd.Flags().GetString("classifications")
		reg.Classifications = splitList(classes)

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := a.users.Register(cmd.Context(), reg)
		if err != nil {
			return err
		}
		printSuccess("Registered %s %s (id %d)", u.Role, u.Email, u.ID)
		return printJSON(cmd.OutOrStdout(), u)
	},
}

var userSpecializeCmd = &cobra.Command{
	Use:   "specialize <id>",
	Short: "Replace a specialist's specialization and classification sets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		specs, _ := cmd.Flags().GetString("specializations")
		classes, _ := cmd.Flags().GetString("classifications")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		u, err := a.users.SetSpecializations(cmd.Context(), id, splitList(specs), splitList(classes))
		if err != nil {
			return err
		}
		printSuccess("Updated %s", u.Email)
		return printJSON(cmd.OutOrStdout(), u)
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List specialists in routing order",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.users.ListSpecialists(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No specialists registered.")
			return nil
		}
		for _, u := range list {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n",
				colorize(colorCyan, strconv.FormatInt(u.ID, 10)),
				u.Email,
				strings.Join(u.Specializations, ", "),
			)
		}
		return nil
	},
}

func init() {
	userAddCmd.Flags().String("email", "", "login email")
	userAddCmd.Flags().String("name", "", "display name")
	userAddCmd.Flags().String("password", "", "password (at least 6 characters)")
	userAddCmd.Flags().String("role", "customer", "customer or specialist")
	userAddCmd.Flags().String("specializations", "", "comma-separated specialization tags")
	userAddCmd.Flags().String("classifications", "", "comma-separated letter categories (routing fallback)")
	userSpecializeCmd.Flags().String("specializations", "", "comma-separated specialization tags")
	userSpecializeCmd.Flags().String("classifications", "", "comma-separated letter categories")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userSpecializeCmd)
	userCmd.AddCommand(userListCmd)
}

// --- classify ---

var classifyCmd = &cobra.Command{
	Use:   "classify <text>",
	Short: "Classify letter text with the configured model",
	Long: `Classify letter text with the configured model. Use "-" to read the text from stdin.

Examples:
  letterdesk classify "Прошу оформить кредитную карту до 2025-04-01"
  cat letter.txt | letterdesk classify -`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		if text == "-" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			text = string(data)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)
		loc, err := cfg.Bank.Location()
		if err != nil {
			return err
		}
		client, err := newLLMClient(cfg.LLM)
		if err != nil {
			return err
		}
		c := classifier.New(client, loc, cfg.Bank.DefaultDeadlineDays)
		return classifyText(cmd.Context(), cmd.OutOrStdout(), c, text, time.Now())
	},
}

type textClassifier interface {
	Classify(ctx context.Context, text string, now time.Time) (classifier.Result, error)
	Fallback(now time.Time) classifier.Result
}

// classifyText prints the verdict for text, falling back to the default
// verdict when the model output is unusable.
func classifyText(ctx context.Context, w io.Writer, c textClassifier, text string, now time.Time) error {
	res, err := c.Classify(ctx, text, now)
	if err != nil {
		printWarning("classification failed, using defaults: %v", err)
		res = c.Fallback(now)
	}
	return printJSON(w, res)
}
