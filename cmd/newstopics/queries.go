package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/NewsTopics/internal/database"
	"github.com/TobiSchelling/NewsTopics/internal/query"
	"github.com/TobiSchelling/NewsTopics/internal/report"
)

// withService opens storage and hands a query service to fn. With --json,
// fn's result or error is printed as an envelope.
func withService(fn func(svc *query.Service) (any, func(), error)) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	svc, err := newQueryService(db)
	if err != nil {
		return err
	}

	data, printText, err := fn(svc)
	if jsonOutput {
		env := query.Success(data, "")
		if err != nil {
			env = query.Failure(err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(env); encErr != nil {
			return encErr
		}
		return err
	}
	if err != nil {
		return err
	}
	printText()
	return nil
}

// optionalInt returns the flag's value only when it was set.
func optionalInt(cmd *cobra.Command, name string, v int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored totals and the latest run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *query.Service) (any, func(), error) {
			stats, err := svc.Status(cmd.Context())
			return stats, func() { printStatus(stats) }, err
		})
	},
}

func printStatus(s *database.Stats) {
	fmt.Println(titleStyle.Render("newstopics status"))
	fmt.Println()
	fmt.Println("Storage:")
	fmt.Printf("  Articles: %d\n", s.TotalArticles)
	fmt.Printf("  Topic assignments: %d\n", s.TotalAssignments)
	fmt.Printf("  Days analyzed: %d\n", s.AnalysisDays)
	fmt.Println("\nRuns:")
	fmt.Printf("  Successful: %d\n", s.SuccessfulRuns)
	fmt.Printf("  Failed: %d\n", s.FailedRuns)

	if r := s.LatestRun; r != nil {
		fmt.Println("\nLatest run:")
		fmt.Printf("  %s (%s)\n", r.AnalysisDate, r.RunID)
		status := r.Status
		if r.Status == database.RunFailed {
			status = errorStyle.Render(status)
		}
		fmt.Printf("  Status: %s\n", status)
		fmt.Printf("  Articles: %d, topics: %d, noise: %d\n", r.ArticleCount, r.TopicCount, r.NoiseCount)
		if r.Degraded {
			fmt.Println("  " + dimStyle.Render("Refinement failed; probabilities are from the initial assignment."))
		}
		if r.Error != "" {
			fmt.Printf("  Error: %s\n", r.Error)
		}
	}
}

// --- dates ---

var datesLimit int

var datesCmd = &cobra.Command{
	Use:   "dates",
	Short: "List analyzed dates, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *query.Service) (any, func(), error) {
			days, err := svc.Dates(cmd.Context(), datesLimit)
			return map[string]any{"dates": days}, func() {
				if len(days) == 0 {
					fmt.Println("No analyzed dates yet. Run 'newstopics run' first.")
					return
				}
				for _, d := range days {
					fmt.Printf("%s  %s\n", d, dimStyle.Render(database.FormatDayDisplay(d)))
				}
			}, err
		})
	},
}

func init() {
	datesCmd.Flags().IntVarP(&datesLimit, "limit", "n", 0, "Show only the most recent N dates (0 = all)")
}

// --- articles ---

var (
	articlesStart   string
	articlesEnd     string
	articlesTopic   int
	articlesKeyword string
)

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "List topic-assigned articles in a date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		end := articlesEnd
		if end == "" {
			end = articlesStart
		}
		return withService(func(svc *query.Service) (any, func(), error) {
			rows, err := svc.Articles(cmd.Context(), query.ArticleQuery{
				Start:   articlesStart,
				End:     end,
				TopicID: optionalInt(cmd, "topic", articlesTopic),
				Keyword: articlesKeyword,
			})
			return map[string]any{"count": len(rows), "articles": rows}, func() {
				if len(rows) == 0 {
					fmt.Println("No articles matched.")
					return
				}
				table := make([][]string, len(rows))
				for i, r := range rows {
					table[i] = []string{r.AnalysisDay, strconv.Itoa(r.TopicID),
						fmt.Sprintf("%.2f", r.Probability), r.Title, r.Link}
				}
				writeTable(os.Stdout, []string{"DATE", "TOPIC", "PROB", "TITLE", "LINK"}, table)
				fmt.Println(dimStyle.Render(fmt.Sprintf("\n%d articles", len(rows))))
			}, err
		})
	},
}

func init() {
	articlesCmd.Flags().StringVar(&articlesStart, "start", "", "First date, YYYY-MM-DD")
	articlesCmd.Flags().StringVar(&articlesEnd, "end", "", "Last date, YYYY-MM-DD (defaults to --start)")
	articlesCmd.Flags().IntVar(&articlesTopic, "topic", 0, "Only this topic id")
	articlesCmd.Flags().StringVarP(&articlesKeyword, "keyword", "k", "", "Case-insensitive match on title or description")
	articlesCmd.MarkFlagRequired("start")
}

// --- keywords ---

var (
	keywordsDate  string
	keywordsTopic int
)

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Show a topic's keywords on a date",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *query.Service) (any, func(), error) {
			rep, err := svc.KeywordFrequency(cmd.Context(), keywordsDate, keywordsTopic)
			return rep, func() { printKeywords(rep) }, err
		})
	},
}

func init() {
	keywordsCmd.Flags().StringVar(&keywordsDate, "date", "", "Date, YYYY-MM-DD")
	keywordsCmd.Flags().IntVar(&keywordsTopic, "topic", 0, "Topic id")
	keywordsCmd.MarkFlagRequired("date")
	keywordsCmd.MarkFlagRequired("topic")
}

func printKeywords(r *query.KeywordReport) {
	title := fmt.Sprintf("Topic %d on %s", r.TopicID, r.Date)
	if r.TopicName != "" {
		title += " (" + r.TopicName + ")"
	}
	fmt.Println(titleStyle.Render(title))

	if !r.Computed {
		fmt.Println(strings.Join(r.Representation, ", "))
		return
	}
	if len(r.TopKeywords) == 0 {
		fmt.Println("No keywords: the topic has no articles on this date.")
		return
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("Counted over %d articles", r.TotalArticles)))
	rows := make([][]string, len(r.TopKeywords))
	for i, k := range r.TopKeywords {
		rows[i] = []string{k.Keyword, strconv.Itoa(k.Count)}
	}
	writeTable(os.Stdout, []string{"KEYWORD", "COUNT"}, rows)
}

// --- trends ---

var (
	trendsDays  int
	trendsTopic int
)

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show per-day topic sizes over the trailing days",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *query.Service) (any, func(), error) {
			rep, err := svc.Trends(cmd.Context(), trendsDays, optionalInt(cmd, "topic", trendsTopic))
			return rep, func() {
				fmt.Println(titleStyle.Render(fmt.Sprintf("Trends %s to %s", rep.Start, rep.End)))
				if len(rep.Points) == 0 {
					fmt.Println("No topics met the threshold in this window.")
					return
				}
				rows := make([][]string, len(rep.Points))
				for i, p := range rep.Points {
					rows[i] = []string{p.Day, strconv.Itoa(p.TopicID), p.TopicName, strconv.Itoa(p.Count)}
				}
				writeTable(os.Stdout, []string{"DATE", "TOPIC", "NAME", "COUNT"}, rows)
			}, err
		})
	},
}

func init() {
	trendsCmd.Flags().IntVarP(&trendsDays, "days", "d", 7, "Number of trailing days")
	trendsCmd.Flags().IntVar(&trendsTopic, "topic", 0, "Only this topic id (bypasses the count threshold)")
}

// --- report ---

var (
	reportDate string
	reportHTML bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the markdown topic report for a date",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		date := reportDate
		if date == "" {
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			date = database.AnalysisDay(time.Now().In(loc))
		}

		rep, err := newComposer(db).Compose(cmd.Context(), date)
		if err != nil {
			return err
		}
		if !reportHTML {
			fmt.Print(rep.Markdown)
			return nil
		}
		html, err := report.RenderHTML(rep.Markdown)
		if err != nil {
			return err
		}
		fmt.Print(html)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Date, YYYY-MM-DD (defaults to today)")
	reportCmd.Flags().BoolVar(&reportHTML, "html", false, "Render HTML instead of markdown")
}
