package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/studyflow/internal/app"
	"github.com/bull/studyflow/internal/pipeline"
	"github.com/bull/studyflow/internal/review"
	"github.com/bull/studyflow/internal/study"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Upload documents and generate study material",
	Long: `Uploads each file (PDF, Markdown or plain text), then chunks, embeds and
generates concepts, flashcards and questions for it.

With --github, imports every .md, .markdown, .txt and .pdf file at
owner/repo/path[@ref] instead.`,
	RunE: runIngest,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents and their processing status",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var showCmd = &cobra.Command{
	Use:   "show <document-id>",
	Short: "Show a document's outline, concepts and study material counts",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var searchCmd = &cobra.Command{
	Use:   "search <document-id> <query>",
	Short: "Find the chunks of a document most similar to a query",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSearch,
}

var sessionCmd = &cobra.Command{
	Use:   "session <document-id>",
	Short: "Run a study session over due flashcards and questions",
	Args:  cobra.ExactArgs(1),
	RunE:  runSession,
}

var reviewCmd = &cobra.Command{
	Use:   "review <document-id> <flashcard-id> <correct|partial|incorrect|skipped>",
	Short: "Reschedule one flashcard",
	Args:  cobra.ExactArgs(3),
	RunE:  runReview,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document, its file and its indexed chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var (
	githubRef   string
	topK        int
	sessionSize int
	sessionSeed uint64
	interactive bool
)

func init() {
	ingestCmd.Flags().StringVar(&githubRef, "github", "", "import from owner/repo/path[@ref]")
	searchCmd.Flags().IntVarP(&topK, "top", "k", 5, "number of chunks to return")
	sessionCmd.Flags().IntVarP(&sessionSize, "items", "n", 0, "maximum items in the session (default from config)")
	sessionCmd.Flags().Uint64Var(&sessionSeed, "seed", 0, "seed for a reproducible question order")
	sessionCmd.Flags().BoolVarP(&interactive, "interactive", "i", true, "prompt for an outcome after each item")

	rootCmd.AddCommand(ingestCmd, listCmd, showCmd, searchCmd, sessionCmd, reviewCmd, deleteCmd)
}

func printProgress(w io.Writer) pipeline.ProgressFunc {
	return func(message string, percent int) {
		fmt.Fprintf(w, "  [%3d%%] %s\n", percent, message)
	}
}

func printResult(w io.Writer, res *pipeline.Result) {
	fmt.Fprintf(w, "  Document: %s (%s)\n", res.Document.ID, res.Document.FileName)
	fmt.Fprintf(w, "  Chunks: %d", res.Chunks)
	if res.DroppedSections > 0 {
		fmt.Fprintf(w, " (%d short sections skipped)", res.DroppedSections)
	}
	fmt.Fprintln(w)
	if c := res.Content; c != nil {
		fmt.Fprintf(w, "  Concepts: %d, flashcards: %d, multiple choice: %d, short answer: %d\n",
			len(c.Concepts), len(c.Flashcards), len(c.MultipleChoiceQuestions), len(c.ShortAnswerQuestions))
	}
	fmt.Fprintf(w, "  Duration: %s\n", res.Duration.Round(time.Millisecond))
}

func runIngest(cmd *cobra.Command, args []string) error {
	if githubRef == "" && len(args) == 0 {
		return fmt.Errorf("nothing to ingest: pass files or --github")
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if githubRef != "" {
		fmt.Fprintf(out, "Importing %s...\n", githubRef)
		results, err := a.ImportGitHub(ctx, githubRef, printProgress(out))
		for _, res := range results {
			printResult(out, res)
		}
		fmt.Fprintf(out, "Imported %d document(s)\n", len(results))
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
	}

	var failed int
	for _, path := range args {
		fmt.Fprintf(out, "Ingesting %s...\n", path)
		res, err := ingestFile(cmd, a, path)
		if err != nil {
			failed++
			fmt.Fprintf(out, "  Failed: %v\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		printResult(out, res)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d document(s) failed", failed, len(args))
	}
	return nil
}

func ingestFile(cmd *cobra.Command, a *app.App, path string) (*pipeline.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return a.Ingest(cmd.Context(), filepath.Base(path), f, printProgress(cmd.OutOrStdout()))
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.ListDocuments(cmd.Context())
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No documents yet. Add one with: studyflow ingest <file>")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tCHUNKS\tFLASHCARDS\tUPLOADED")
	for _, doc := range docs {
		cards := 0
		if doc.StudyContent != nil {
			cards = len(doc.StudyContent.Flashcards)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			doc.ID, doc.FileName, doc.Status, len(doc.Chunks), cards, doc.UploadedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := a.GetDocument(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", doc.FileName)
	fmt.Fprintf(out, "  Status: %s\n", doc.Status)
	if doc.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error: %s\n", doc.ErrorMessage)
	}
	if doc.Source != "" {
		fmt.Fprintf(out, "  Source: %s\n", doc.Source)
	}
	if len(doc.Outline) > 0 {
		fmt.Fprintln(out, "\nOutline:")
		for _, h := range doc.Outline {
			fmt.Fprintf(out, "  - %s\n", h)
		}
	}

	sc := doc.StudyContent
	if sc == nil {
		return nil
	}
	fmt.Fprintln(out, "\nConcepts:")
	for _, c := range sc.Concepts {
		fmt.Fprintf(out, "  - %s [%s]: %s\n", c.Name, c.CategoryOrDefault(), c.Definition)
	}
	if len(sc.EnrichedKnowledge) > 0 {
		fmt.Fprintln(out, "\nBackground:")
		for _, k := range sc.EnrichedKnowledge {
			fmt.Fprintf(out, "  - %s\n", k.Topic)
			for _, c := range k.Citations {
				fmt.Fprintf(out, "      %s %s\n", c.Source, c.URL)
			}
		}
	}
	due := review.DueFlashcards(sc.Flashcards, time.Now())
	fmt.Fprintf(out, "\nFlashcards: %d (%d due), multiple choice: %d, short answer: %d\n",
		len(sc.Flashcards), len(due), len(sc.MultipleChoiceQuestions), len(sc.ShortAnswerQuestions))
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	query := strings.Join(args[1:], " ")
	hits, err := a.Search(cmd.Context(), args[0], query, topK)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(hits) == 0 {
		fmt.Fprintln(out, "No matching chunks.")
		return nil
	}
	for i, h := range hits {
		fmt.Fprintf(out, "%d. [%.3f] %s\n", i+1, h.Score, h.Chunk.Heading)
		fmt.Fprintf(out, "   %s\n\n", truncate(h.Chunk.Content, 240))
	}
	return nil
}

func runSession(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	n := sessionSize
	if n == 0 {
		n = a.Config.Session.Size
	}
	session, items, err := a.StartSession(cmd.Context(), args[0], n, sessionSeed)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	in := bufio.NewScanner(cmd.InOrStdin())
	for i, item := range items {
		fmt.Fprintf(out, "\n(%d/%d) %s\n", i+1, len(items), strings.ReplaceAll(string(item.Type), "_", " "))
		prompt, answer := describe(item)
		fmt.Fprintln(out, prompt)
		if !interactive {
			fmt.Fprintf(out, "Answer: %s\n", answer)
			continue
		}

		start := time.Now()
		fmt.Fprint(out, "Press Enter to reveal the answer...")
		if !in.Scan() {
			break
		}
		fmt.Fprintf(out, "Answer: %s\n", answer)

		outcome, ok := askOutcome(out, in)
		if !ok {
			break
		}
		if _, err := a.RecordReview(cmd.Context(), session.ID, item.ID, outcome, time.Since(start)); err != nil {
			return err
		}
	}

	done, err := a.CompleteSession(session.ID)
	if err != nil {
		return err
	}
	stats := done.Statistics
	fmt.Fprintf(out, "\nSession complete: %d reviewed, %d correct, %d incorrect in %s\n",
		stats.TotalItems, stats.CorrectAnswers, stats.IncorrectAnswers, stats.TotalTimeSpent.Round(time.Second))
	for topic, count := range stats.TopicBreakdown {
		fmt.Fprintf(out, "  %s: %d\n", topic, count)
	}
	return nil
}

func describe(item review.Item) (prompt, answer string) {
	switch item.Type {
	case study.ItemFlashcard:
		return item.Flashcard.Front, item.Flashcard.Back
	case study.ItemMultipleChoice:
		q := item.MultipleChoice
		var b strings.Builder
		b.WriteString(q.Question)
		for i, opt := range q.Options {
			fmt.Fprintf(&b, "\n  %c) %s", 'a'+i, opt)
		}
		if q.CorrectOptionIndex >= 0 && q.CorrectOptionIndex < len(q.Options) {
			answer = fmt.Sprintf("%c) %s", 'a'+q.CorrectOptionIndex, q.Options[q.CorrectOptionIndex])
		}
		if q.Explanation != "" {
			answer += "\n" + q.Explanation
		}
		return b.String(), answer
	case study.ItemShortAnswer:
		q := item.ShortAnswer
		answer = q.ModelAnswer
		for _, p := range q.KeyPoints {
			answer += "\n  - " + p
		}
		return q.Question, answer
	}
	return "", ""
}

var outcomeKeys = map[string]study.ReviewOutcome{
	"c": study.OutcomeCorrect,
	"p": study.OutcomePartial,
	"i": study.OutcomeIncorrect,
	"s": study.OutcomeSkipped,
}

// askOutcome reads outcomes until a valid one is entered. It reports false
// at end of input.
func askOutcome(w io.Writer, in *bufio.Scanner) (study.ReviewOutcome, bool) {
	for {
		fmt.Fprint(w, "How did it go? [c]orrect [p]artial [i]ncorrect [s]kip: ")
		if !in.Scan() {
			return "", false
		}
		text := strings.ToLower(strings.TrimSpace(in.Text()))
		if o, ok := outcomeKeys[text]; ok {
			return o, true
		}
		if o, err := study.ParseReviewOutcome(text); err == nil {
			return o, true
		}
	}
}

func runReview(cmd *cobra.Command, args []string) error {
	outcome, err := study.ParseReviewOutcome(args[2])
	if err != nil {
		return err
	}
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	card, err := a.ReviewFlashcard(cmd.Context(), args[0], args[1], outcome)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Next review %s (interval %d day(s), ease %.2f)\n",
		card.NextReviewAt.Local().Format(time.DateTime), card.IntervalDays, card.EaseFactor)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Documents.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func truncate(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
