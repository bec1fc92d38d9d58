package app

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vargento/internal/classifier"
	slackbot "vargento/internal/integrations/slack"
	"vargento/internal/labels"
	"vargento/internal/report"
	"vargento/internal/schedule"
	"vargento/internal/storage/sqlite"
)

func (c *cli) trainCommand() *cobra.Command {
	var algorithm string
	var seed int
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train on the dataset and print held-out accuracy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if algorithm != "" {
				algo, err := classifier.ParseAlgorithm(algorithm)
				if err != nil {
					return err
				}
				c.cfg.Algorithm = string(algo)
			}
			if cmd.Flags().Changed("seed") {
				if seed < 1 {
					return fmt.Errorf("--seed must be at least 1, got %d", seed)
				}
				c.cfg.SplitSeed = seed
			}
			snap, err := newEngine(c.cfg, nil, c.logger).Reload(cmd.Context())
			if err != nil {
				return err
			}
			printTraining(cmd.OutOrStdout(), c.cfg.DatasetPath, snap.Encoding, len(snap.Dataset), snap.Dropped, snap.Report)
			return nil
		},
	}
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "naive_bayes or gradient_boosting (overrides config)")
	cmd.Flags().IntVar(&seed, "seed", classifier.DefaultSeed, "Split seed (overrides config)")
	return cmd
}

func printTraining(w io.Writer, path, encoding string, rows, dropped int, r classifier.TrainingReport) {
	fmt.Fprintf(w, "Dataset:    %s (%s, %d rows", path, encoding, rows)
	if dropped > 0 {
		fmt.Fprintf(w, ", %d incomplete rows skipped", dropped)
	}
	fmt.Fprintln(w, ")")
	fmt.Fprintf(w, "Algorithm:  %s\n", r.Algorithm)
	fmt.Fprintf(w, "Accuracy:   %.1f%% on %d held-out rows (%d for training)\n", r.Accuracy*100, r.TestSize, r.TrainSize)
	if r.Stratified {
		fmt.Fprintln(w, "Split:      stratified")
	} else {
		fmt.Fprintln(w, "Split:      not stratified (too few examples per label)")
	}
	fmt.Fprintf(w, "Vocabulary: %d terms\n", r.VocabularySize)

	names := make([]string, 0, len(r.LabelCounts))
	for name := range r.LabelCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(w, "Labels:")
	for _, name := range names {
		fmt.Fprintf(w, "  %-20s %d\n", name, r.LabelCounts[name])
	}
}

type predictOutput struct {
	Label         string                        `json:"label"`
	DisplayLabel  string                        `json:"display_label"`
	Confidence    float64                       `json:"confidence"`
	Probabilities []classifier.LabelProbability `json:"probabilities"`
	Similar       []classifier.SimilarIncident  `json:"similar"`
}

func (c *cli) predictCommand() *cobra.Command {
	var top int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "predict [description]",
		Short: "Suggest a decision for an incident description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := labels.Load(c.cfg.LabelsPath)
			if err != nil {
				return fmt.Errorf("load labels: %w", err)
			}
			snap, err := newEngine(c.cfg, nil, c.logger).Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			pred, err := snap.Model.Predict(text)
			if err != nil {
				return err
			}
			out := predictOutput{
				Label:         pred.Label,
				DisplayLabel:  catalog.Display(pred.Label),
				Confidence:    pred.Confidence,
				Probabilities: pred.Probabilities,
				Similar:       snap.Similar.TopK(text, top),
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			fmt.Fprintf(w, "Decision:   %s (%.1f%%)\n", out.DisplayLabel, out.Confidence*100)
			for _, p := range out.Probabilities {
				fmt.Fprintf(w, "  %-20s %5.1f%%\n", catalog.Display(p.Label), p.Probability*100)
			}
			if len(out.Similar) > 0 {
				fmt.Fprintln(w, "Similar incidents:")
				for i, s := range out.Similar {
					fmt.Fprintf(w, "  %d. [%s] %s (%.2f)\n", i+1, s.Decision, s.Description, s.Score)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 3, "Number of similar incidents to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func (c *cli) digestCommand() *cobra.Command {
	var days int
	var post bool
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Print (or post to Slack) the activity digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}
			catalog, err := labels.Load(c.cfg.LabelsPath)
			if err != nil {
				return fmt.Errorf("load labels: %w", err)
			}
			db, err := sqlite.InitDB(c.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init database: %w", err)
			}
			defer db.Close()

			since := time.Now().In(c.cfg.Location).AddDate(0, 0, -days)
			md, err := schedule.BuildDigest(db, since, c.cfg.BrandName, catalog.Display)
			if err != nil {
				return err
			}
			if !post {
				fmt.Fprintln(cmd.OutOrStdout(), md)
				return nil
			}
			notifier := slackbot.NewNotifier(c.cfg, c.cfg.PublicURL, c.logger)
			if notifier == nil {
				return fmt.Errorf("slack_bot_token and slack_channel_id are required to post the digest")
			}
			if err := notifier.PostDigest(cmd.Context(), report.SlackMrkdwn(md)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Digest posted to %s\n", c.cfg.SlackChannelID)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "Days of history to summarize")
	cmd.Flags().BoolVar(&post, "post", false, "Post to the configured Slack channel instead of printing")
	return cmd
}

func (c *cli) pruneCommand() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete stored predictions older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("days") {
				days = c.cfg.HistoryRetentionDays
			}
			if days < 1 {
				return fmt.Errorf("retention must be at least 1 day, got %d", days)
			}
			db, err := sqlite.InitDB(c.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init database: %w", err)
			}
			defer db.Close()

			sched, err := schedule.New(db, nil, schedule.Options{
				DigestSchedule: c.cfg.DigestSchedule,
				RetentionDays:  days,
				Location:       c.cfg.Location,
			}, c.logger)
			if err != nil {
				return err
			}
			n, err := sched.Prune(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d predictions older than %d days\n", n, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "Retention in days (default: history_retention_days)")
	return cmd
}
