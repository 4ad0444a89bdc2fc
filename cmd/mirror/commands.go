package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/mirror/internal/api"
	"github.com/kalambet/mirror/internal/config"
	"github.com/kalambet/mirror/internal/storage"
)

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Ingest and read personality profiles",
}

var profileIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest generator output as your profile",
	Long: `Ingest generator output as your profile.

The input holds a narrative followed by a JSON block between JSON-START and
JSON-END markers. PDF exports are read with --file when the name ends in .pdf.

Examples:
  mirror --user alice profile ingest --file ./analysis.txt
  mirror --user alice profile ingest --file ./analysis.pdf
  mirror --user alice profile ingest --text "$(pbpaste)"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		if (text == "") == (file == "") {
			return fmt.Errorf("exactly one of --text or --file is required")
		}
		if _, err := requireUser(); err != nil {
			return err
		}

		var req api.IngestRequest
		switch {
		case text != "":
			req.Text = text
		default:
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			if strings.EqualFold(filepath.Ext(file), ".pdf") {
				req.PDFBase64 = base64.StdEncoding.EncodeToString(data)
			} else {
				req.Text = string(data)
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/profile/ingest", req)
		if err != nil {
			return err
		}
		var sp struct {
			Confidence  string `json:"confidence"`
			Validated   bool   `json:"validated"`
			RepairStage string `json:"repair_stage"`
		}
		if err := decodeJSON(resp, &sp); err != nil {
			return withReasons(err)
		}

		switch {
		case !sp.Validated:
			printWarning("Profile could not be recovered; stored a placeholder. Regenerate the analysis and ingest again.")
		case sp.RepairStage != "":
			printSuccess("Profile stored (repaired: %s, confidence %s)", sp.RepairStage, sp.Confidence)
		default:
			printSuccess("Profile stored")
		}
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireUser(); err != nil {
			return err
		}
		summary, _ := cmd.Flags().GetBool("summary")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if summary {
			resp, err := client.get(cmd.Context(), "/profile/summary")
			if err != nil {
				return err
			}
			var out map[string]string
			if err := decodeJSON(resp, &out); err != nil {
				return err
			}
			fmt.Fprintln(stdout, out["summary"])
			return nil
		}

		resp, err := client.get(cmd.Context(), "/profile")
		if err != nil {
			return err
		}
		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}
		return printJSON(profile)
	},
}

var profileViewCmd = &cobra.Command{
	Use:   "view <user-id>",
	Short: "Show another user's profile (requires accepted mirror access)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireUser(); err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/profiles/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}
		return printJSON(profile)
	},
}

func init() {
	profileIngestCmd.Flags().String("text", "", "generator output to ingest")
	profileIngestCmd.Flags().String("file", "", "file holding generator output (.txt, .md or .pdf)")
	profileShowCmd.Flags().Bool("summary", false, "print a one-paragraph summary instead of JSON")
	profileCmd.AddCommand(profileIngestCmd, profileShowCmd, profileViewCmd)
}

// withReasons appends integrity rule failures to err, one per line.
func withReasons(err error) error {
	var ae *apiError
	if !errors.As(err, &ae) || len(ae.Reasons) == 0 {
		return err
	}
	return fmt.Errorf("%w\n  - %s", err, strings.Join(ae.Reasons, "\n  - "))
}

// --- mirror / contact ---

// protocol describes one request protocol's CLI surface.
type protocol struct {
	name        string
	short       string
	refusal     string
	withMessage bool
}

var (
	mirrorProtocol = protocol{
		name:    "mirror",
		short:   "Request, grant or refuse access to profiles",
		refusal: storage.StatusRejected,
	}
	contactProtocol = protocol{
		name:        "contact",
		short:       "Request, accept or decline conversations with mutual mirrors",
		refusal:     storage.StatusDeclined,
		withMessage: true,
	}
)

func newRequestCmd(p protocol) *cobra.Command {
	root := &cobra.Command{Use: p.name, Short: p.short}

	request := &cobra.Command{
		Use:   "request <user-id>",
		Short: fmt.Sprintf("Send a %s request", p.name),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := requireUser(); err != nil {
				return err
			}
			body := api.CreateRequestBody{ReceiverID: args[0]}
			if p.withMessage {
				body.Message, _ = cmd.Flags().GetString("message")
			}
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.post(cmd.Context(), "/"+p.name+"/requests", body)
			if err != nil {
				return err
			}
			var req storage.Request
			if err := decodeJSON(resp, &req); err != nil {
				return err
			}
			printSuccess("Sent %s request %s to %s", p.name, req.ID, req.ReceiverID)
			return nil
		},
	}
	if p.withMessage {
		request.Flags().String("message", "", "optional note to the recipient (max 500 characters)")
	}

	respond := &cobra.Command{
		Use:       fmt.Sprintf("respond <request-id> <accepted|%s>", p.refusal),
		Short:     fmt.Sprintf("Answer a %s request you received", p.name),
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{storage.StatusAccepted, p.refusal},
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := requireUser(); err != nil {
				return err
			}
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.post(cmd.Context(), "/"+p.name+"/requests/"+url.PathEscape(args[0])+"/respond", api.RespondBody{Decision: args[1]})
			if err != nil {
				return err
			}
			var req storage.Request
			if err := decodeJSON(resp, &req); err != nil {
				return err
			}
			printSuccess("Request %s %s", req.ID, req.Status)
			if req.ConversationID != "" {
				printStatus("Conversation", "%s", req.ConversationID)
			}
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %s requests you received (or sent)", p.name),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := requireUser(); err != nil {
				return err
			}
			sent, _ := cmd.Flags().GetBool("sent")
			limit, _ := cmd.Flags().GetInt("limit")
			dir := "received"
			if sent {
				dir = "sent"
			}
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.get(cmd.Context(), fmt.Sprintf("/%s/requests/%s?limit=%d", p.name, dir, limit))
			if err != nil {
				return err
			}
			var reqs []storage.Request
			if err := decodeJSON(resp, &reqs); err != nil {
				return err
			}
			if len(reqs) == 0 {
				printStatus(strings.ToUpper(dir[:1])+dir[1:], "none")
				return nil
			}
			for _, r := range reqs {
				other := r.SenderID
				if sent {
					other = r.ReceiverID
				}
				fmt.Fprintf(stdout, "%s  %-8s  %s  %s\n", r.ID, r.Status, other, r.RequestedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	list.Flags().Bool("sent", false, "list requests you sent")
	list.Flags().Int("limit", 50, "maximum number of requests to list")

	can := &cobra.Command{
		Use:   "can <user-id>",
		Short: fmt.Sprintf("Check whether you could send a %s request now", p.name),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := requireUser(); err != nil {
				return err
			}
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			resp, err := client.get(cmd.Context(), "/"+p.name+"/can-request/"+url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			var out map[string]bool
			if err := decodeJSON(resp, &out); err != nil {
				return err
			}
			if out["can_request"] {
				printSuccess("You can send %s a %s request", args[0], p.name)
			} else {
				printWarning("You cannot send %s a %s request right now", args[0], p.name)
			}
			return nil
		},
	}

	root.AddCommand(request, respond, list, can)

	if p.name == contactProtocol.name {
		root.AddCommand(&cobra.Command{
			Use:   "conversation <request-id>",
			Short: "Get or create the conversation for an accepted contact request",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := requireUser(); err != nil {
					return err
				}
				client, err := newAPIClient()
				if err != nil {
					return err
				}
				resp, err := client.post(cmd.Context(), "/contact/requests/"+url.PathEscape(args[0])+"/conversation", nil)
				if err != nil {
					return err
				}
				var req storage.Request
				if err := decodeJSON(resp, &req); err != nil {
					return err
				}
				printStatus("Conversation", "%s", req.ConversationID)
				return nil
			},
		})
	}
	return root
}

// --- notifications ---

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List your notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireUser(); err != nil {
			return err
		}
		unread, _ := cmd.Flags().GetBool("unread")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := fmt.Sprintf("/notifications?limit=%d", limit)
		if unread {
			path += "&unread=true"
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var items []storage.Notification
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}
		if len(items) == 0 {
			printStatus("Notifications", "none")
			return nil
		}
		for _, n := range items {
			mark := " "
			if n.ReadAt == nil {
				mark = colorize(colorCyan, "•")
			}
			fmt.Fprintf(stdout, "%s %s  %s  %s\n", mark, n.ID, colorize(colorBold, n.Title), n.Message)
		}
		return nil
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <notification-id>",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireUser(); err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/notifications/"+url.PathEscape(args[0])+"/read", nil)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Marked %s read", args[0])
		return nil
	},
}

func init() {
	notificationsCmd.Flags().Bool("unread", false, "only unread notifications")
	notificationsCmd.Flags().Int("limit", 20, "maximum number of notifications to list")
	notificationsCmd.AddCommand(notificationsReadCmd)
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
			fmt.Fprintf(stdout, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
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

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
