package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/veracity-social/veracity/internal/model"
)

var (
	postID     string
	postAuthor string
	postText   string
	postImage  string
	repostOf   string
	quoteOf    string

	commentPost   string
	commentParent string
)

// processCmd groups the ingestion commands.
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Ingest content and run it through the trust pipeline",
}

var processPostCmd = &cobra.Command{
	Use:   "post",
	Short: "Ingest a post",
	Long: `Ingest a post and run the full pipeline over it: triage, claim
extraction, verification, policy, value scoring, and trust update.

Reposts (--repost-of) inherit the original's verification without any
agent calls. Quotes (--quote-of) are processed on their own text, reusing
verdicts for claims matching the original's.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(postText) == "" && postImage == "" && repostOf == "" {
			return fmt.Errorf("post needs --text, --image, or --repost-of")
		}
		if repostOf != "" && quoteOf != "" {
			return fmt.Errorf("--repost-of and --quote-of are mutually exclusive")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		application, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = application.Close() }()

		post := &model.Post{
			ID:       postID,
			Author:   postAuthor,
			Text:     postText,
			Image:    postImage,
			RepostOf: repostOf,
			QuoteOf:  quoteOf,
		}
		if post.ID == "" {
			post.ID = uuid.NewString()
		}

		if err := application.orch.IngestPost(cmd.Context(), post); err != nil {
			return fmt.Errorf("process post: %w", err)
		}
		return printResult(application, post.ID, "post")
	},
}

var processCommentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Ingest a comment",
	Long: `Ingest a comment on an existing post and run the pipeline over it.
The parent post's discussion quality is refreshed afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if commentPost == "" {
			return fmt.Errorf("comment needs --post")
		}
		if strings.TrimSpace(postText) == "" && postImage == "" {
			return fmt.Errorf("comment needs --text or --image")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		application, err := buildApp(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = application.Close() }()

		comment := &model.Comment{
			ID:       uuid.NewString(),
			PostID:   commentPost,
			ParentID: commentParent,
			Author:   postAuthor,
			Text:     postText,
			Image:    postImage,
		}

		if err := application.orch.IngestComment(cmd.Context(), comment); err != nil {
			return fmt.Errorf("process comment: %w", err)
		}
		return printResult(application, comment.ID, "comment")
	},
}

// printResult reloads the processed unit and prints its insights as JSON.
func printResult(application *app, id, kind string) error {
	var insights model.Insights
	switch kind {
	case "post":
		post, err := application.store.GetPost(id)
		if err != nil {
			return err
		}
		insights = post.Insights
	case "comment":
		comment, err := application.store.GetComment(id)
		if err != nil {
			return err
		}
		insights = comment.Insights
	}

	out := struct {
		ID       string         `json:"id"`
		Insights model.Insights `json:"insights"`
	}{ID: id, Insights: insights}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func init() {
	processPostCmd.Flags().StringVar(&postID, "id", "", "post id (generated when empty)")
	processPostCmd.Flags().StringVar(&postAuthor, "author", "", "author user id")
	processPostCmd.Flags().StringVar(&postText, "text", "", "post text")
	processPostCmd.Flags().StringVar(&postImage, "image", "", "image reference")
	processPostCmd.Flags().StringVar(&repostOf, "repost-of", "", "id of the post being reposted")
	processPostCmd.Flags().StringVar(&quoteOf, "quote-of", "", "id of the post being quoted")
	_ = processPostCmd.MarkFlagRequired("author")

	processCommentCmd.Flags().StringVar(&commentPost, "post", "", "post id the comment belongs to")
	processCommentCmd.Flags().StringVar(&commentParent, "parent", "", "parent comment id for replies")
	processCommentCmd.Flags().StringVar(&postAuthor, "author", "", "author user id")
	processCommentCmd.Flags().StringVar(&postText, "text", "", "comment text")
	processCommentCmd.Flags().StringVar(&postImage, "image", "", "image reference")
	_ = processCommentCmd.MarkFlagRequired("author")

	processCmd.AddCommand(processPostCmd)
	processCmd.AddCommand(processCommentCmd)
	rootCmd.AddCommand(processCmd)
}
