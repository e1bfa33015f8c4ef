package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sercha-media/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-media/internal/core/domain"
)

// listKeys hold comma-separated lists.
var listKeys = map[string]bool{"watch.paths": true}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change settings stored in ~/.sercha-media/config.toml.

Keys use dot notation, for example segmenter.sensitivity or
embedding.audio_speech.provider.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a single setting",
	Args:  cobra.ExactArgs(2),
	RunE:  runSettingsSet,
}

var settingsEmbeddingCmd = &cobra.Command{
	Use:   "embedding <modality>",
	Short: "Configure the embedding provider of a modality",
	Long: `Interactively choose the provider, model and credentials for one of
visual, audio_music, audio_speech or face. Cloud providers only serve
audio_speech.`,
	Args: cobra.ExactArgs(1),
	RunE: runSettingsEmbedding,
}

var settingsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate settings and ping embedding providers",
	RunE:  runSettingsCheck,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd, settingsEmbeddingCmd, settingsCheckCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if err := ensureSettings(); err != nil {
		return err
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	applyEnvKeys(settings)

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Embedding]")
	for _, m := range domain.AllModalities() {
		es := settings.Embedding[m]
		cmd.Printf("  %s: %s, model %s\n", m, es.Provider.Description(), es.Model)
		if es.BaseURL != "" {
			cmd.Printf("    Base URL: %s\n", es.BaseURL)
		}
		if es.Provider.RequiresAPIKey() {
			if es.APIKey != "" {
				cmd.Printf("    API Key: %s\n", maskAPIKey(es.APIKey))
			} else {
				cmd.Printf("    API Key: (not set)\n")
			}
		}
	}
	cmd.Printf("  Rate limit: %.1f/s  Cache: %d entries, %s\n", settings.RateLimit, settings.CacheSize, settings.CacheTTL)
	cmd.Println()

	o := settings.Orchestrator
	cmd.Println("[Ingestion]")
	cmd.Printf("  Workers: %d  Queue: %d  Segment concurrency: %d\n", o.MaxWorkers, o.QueueSize, o.SegmentConcurrency)
	cmd.Printf("  Max failed segment ratio: %.2f\n", o.MaxFailedSegmentRatio)
	cmd.Printf("  Retries: %d attempts, %s to %s (x%.1f)\n", settings.Retry.MaxAttempts,
		settings.Retry.BaseDelay, settings.Retry.MaxDelay, settings.Retry.Multiplier)
	cmd.Println()

	g := settings.Segmenter
	cmd.Println("[Segmentation]")
	cmd.Printf("  Sensitivity: %.2f  Min duration: %s  Max segments: %d\n", g.Sensitivity, g.MinDuration, g.MaxSegments)
	cmd.Printf("  Audio window: %s  Speech: %s  Faces: %s\n", g.AudioWindow, yesNo(g.Speech), yesNo(g.Faces))
	cmd.Println()

	f := settings.Fusion
	cmd.Println("[Search]")
	cmd.Printf("  Candidate factor: %d  Tolerance: %s  Face boost: %.2f\n", f.CandidateFactor, f.Tolerance, f.FaceBoost)
	for _, name := range domain.AllProfileNames() {
		cmd.Printf("  Profile %s: %s\n", name, formatProfile(f.Profiles[name]))
	}
	cmd.Println()

	cmd.Println("[Storage]")
	cmd.Printf("  Vectors: %s", settings.VectorStore.Backend)
	switch settings.VectorStore.Backend {
	case domain.VectorBackendMilvus:
		cmd.Printf(" (%s)", settings.VectorStore.MilvusAddress)
	case domain.VectorBackendPgvector:
		cmd.Printf(" (%s)", maskDSN(settings.VectorStore.PgvectorDSN))
	}
	cmd.Println()
	cmd.Printf("  Metadata: %s\n", settings.MetadataStore.Backend)
	if settings.Media.S3Region != "" {
		cmd.Printf("  S3 region: %s\n", settings.Media.S3Region)
	}
	cmd.Println()

	cmd.Println("[Watch]")
	if len(settings.Watch.Paths) == 0 {
		cmd.Println("  Paths: (none)")
	} else {
		cmd.Printf("  Paths: %s\n", strings.Join(settings.Watch.Paths, ", "))
	}
	if settings.Watch.RescanCron != "" {
		cmd.Printf("  Rescan: %s\n", settings.Watch.RescanCron)
	}
	cmd.Println()

	if err := settings.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if err := ensureSettings(); err != nil {
		return err
	}
	key, raw := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
	if key == "" {
		return fmt.Errorf("%w: empty key", domain.ErrInvalidInput)
	}

	if err := configStore.Set(key, parseSettingValue(key, raw)); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	cmd.Printf("%s = %s\n", key, raw)

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to reload settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
	}
	return nil
}

// parseSettingValue converts raw to the narrowest TOML type that fits.
// Durations stay strings.
func parseSettingValue(key, raw string) any {
	if listKeys[key] {
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items
	}
	if i, err := strconv.Atoi(raw); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}

func runSettingsEmbedding(cmd *cobra.Command, args []string) error {
	if err := ensureSettings(); err != nil {
		return err
	}
	m := domain.Modality(args[0])
	if !m.IsValid() {
		return fmt.Errorf("%w: unknown modality %q", domain.ErrInvalidInput, args[0])
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	reader := bufio.NewReader(cmd.InOrStdin())
	es, err := configureEmbeddingProvider(cmd, reader, m, settings.Embedding[m])
	if err != nil {
		return err
	}
	settings.Embedding[m] = es
	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	cmd.Printf("%s embedding provider configured: %s (%s)\n", m, es.Provider.Description(), es.Model)
	return nil
}

func configureEmbeddingProvider(
	cmd *cobra.Command, reader *bufio.Reader, m domain.Modality, current domain.EmbeddingSettings,
) (domain.EmbeddingSettings, error) {
	providers := domain.AllEmbeddingProviders()
	if m != domain.ModalityAudioSpeech {
		providers = providers[:1]
	}
	cmd.Printf("Select %s provider\n", m)
	defaultIdx := 1
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
		if p == current.Provider {
			defaultIdx = i + 1
		}
	}
	cmd.Printf("\nEnter choice [%d]: ", defaultIdx)
	provider := providers[parseChoice(readLine(reader), len(providers), defaultIdx)-1]

	es := domain.EmbeddingSettings{Provider: provider}
	defaultModel := domain.DefaultEmbeddingModels()[provider]
	if provider == current.Provider && current.Model != "" {
		defaultModel = current.Model
	}
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	if es.Model = readLine(reader); es.Model == "" {
		es.Model = defaultModel
	}
	if es.Model == "" {
		return es, errors.New("model name is required")
	}

	if provider == domain.EmbeddingProviderInference {
		defaultURL := current.BaseURL
		if defaultURL == "" {
			defaultURL = domain.DefaultAppSettings().Embedding[m].BaseURL
		}
		cmd.Printf("Enter inference server URL [%s]: ", defaultURL)
		if es.BaseURL = readLine(reader); es.BaseURL == "" {
			es.BaseURL = defaultURL
		}
		return es, nil
	}

	env := apiKeyEnv[provider]
	cmd.Printf("Enter API key (blank to use $%s): ", env)
	es.APIKey = readPassword(cmd.InOrStdin(), reader)
	cmd.Println()
	if es.APIKey == "" && os.Getenv(env) == "" {
		return es, fmt.Errorf("API key is required: enter one or set %s", env)
	}
	return es, nil
}

func runSettingsCheck(cmd *cobra.Command, _ []string) error {
	if err := ensureSettings(); err != nil {
		return err
	}
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	applyEnvKeys(settings)
	if err := settings.Validate(); err != nil {
		return err
	}

	cmd.Print("Pinging embedding providers... ")
	res, err := ai.CreateAndValidateEmbeddingProvider(commandContext(cmd), settings)
	if err != nil {
		cmd.Println("FAILED")
		return err
	}
	defer res.Close()
	if len(res.Warnings) == 0 {
		cmd.Println("OK")
		return nil
	}
	cmd.Println()
	for _, w := range res.Warnings {
		cmd.Printf("  Warning: %s\n", w)
	}
	return nil
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo when in is a terminal, otherwise a plain line.
func readPassword(in io.Reader, reader *bufio.Reader) string {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskDSN hides the password of a postgres URL.
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return dsn
	}
	return dsn[:scheme+3] + user + ":****" + dsn[at:]
}

func formatProfile(p domain.WeightProfile) string {
	keys := make([]string, 0, len(p))
	for m := range p {
		keys = append(keys, string(m))
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.2f", k, p[domain.Modality(k)])
	}
	return strings.Join(parts, " ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// confirm asks a yes/no question; anything but y or yes is no.
func confirm(cmd *cobra.Command, in io.Reader, question string) bool {
	cmd.Printf("%s [y/N]: ", question)
	answer := strings.ToLower(readLine(bufio.NewReader(in)))
	return answer == "y" || answer == "yes"
}
