package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"agentforge/chat-api/internal/domain/document"
	"agentforge/chat-api/internal/domain/message"
	"agentforge/chat-api/internal/domain/stream"
	"agentforge/chat-api/pkg/chatclient"
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send a message and print the streamed reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().String("chat", "", "Existing chat id (default: start a new chat)")
	chatCmd.Flags().StringP("model", "m", "", "Model id")
	chatCmd.Flags().String("agent", "", "Agent id")
	chatCmd.Flags().String("system", "", "System prompt")
	chatCmd.Flags().Bool("reasoning", false, "Print reasoning deltas")
}

func runChat(cmd *cobra.Command, args []string) error {
	chatID, _ := cmd.Flags().GetString("chat")
	if chatID == "" {
		chatID = uuid.NewString()
	}
	model, _ := cmd.Flags().GetString("model")
	system, _ := cmd.Flags().GetString("system")
	showReasoning, _ := cmd.Flags().GetBool("reasoning")

	req := chatclient.ChatRequest{
		ChatID:       chatID,
		Model:        model,
		SystemPrompt: system,
		Messages: []message.Message{{
			ID:    uuid.NewString(),
			Role:  message.RoleUser,
			Parts: []message.Part{&message.TextPart{Text: strings.Join(args, " ")}},
		}},
	}
	if agent, _ := cmd.Flags().GetString("agent"); agent != "" {
		req.AgentID = &agent
	}

	cs, err := newClient(cmd).StreamChat(cmd.Context(), req)
	if err != nil {
		return err
	}
	defer cs.Close()

	out := cmd.OutOrStdout()
	msg, doc, usage, err := render(out, cs, showReasoning)
	fmt.Fprintln(out)
	if err != nil {
		return err
	}

	if doc.ID != "" {
		fmt.Fprintf(out, "\n[document %s] %s (%s, %d chars)\n", doc.ID, doc.Title, doc.Kind, len(doc.Content))
	}
	if usage != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "tokens: %d prompt, %d completion\n", usage.PromptTokens, usage.CompletionTokens)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "chat: %s\n", cs.ChatID)

	switch msg.Status {
	case message.StatusDone:
		return nil
	case message.StatusFailed:
		return fmt.Errorf("reply failed: %s", msg.Error)
	default:
		return fmt.Errorf("reply incomplete: %s", msg.Error)
	}
}

// render prints text as it arrives and folds every event into the message and
// document views.
func render(out io.Writer, cs *chatclient.ChatStream, showReasoning bool) (message.Message, document.View, *stream.Usage, error) {
	msgs := message.NewAssembler("", cs.ChatID)
	docs := document.NewAssembler()
	inReasoning := false
	var usage *stream.Usage

	for {
		ev, err := cs.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			msgs.Interrupt(err)
			break
		}
		if err := msgs.Apply(ev); err != nil {
			return msgs.Snapshot(), docs.View(), usage, err
		}
		if _, err := docs.Apply(ev); err != nil {
			fmt.Fprintf(out, "\n[document event rejected: %v]\n", err)
		}

		switch v := ev.(type) {
		case stream.TextDelta:
			if inReasoning {
				fmt.Fprint(out, "\n\n")
				inReasoning = false
			}
			fmt.Fprint(out, v.Text)
		case stream.ReasoningDelta:
			if showReasoning {
				inReasoning = true
				fmt.Fprint(out, v.Text)
			}
		case stream.ToolCall:
			fmt.Fprintf(out, "\n[tool %s %s]\n", v.ToolName, v.ToolCallID)
		case stream.ToolResult:
			fmt.Fprintf(out, "[tool result %s]\n", v.ToolCallID)
		case stream.Error:
			fmt.Fprintf(out, "\n[error %s: %s]", v.Code, v.Message)
		case stream.Finish:
			usage = v.Usage
		}
	}

	msg := msgs.Snapshot()
	for _, d := range msgs.Diagnostics() {
		fmt.Fprintf(out, "\n[protocol: %s %s]", d.Event, d.Reason)
	}
	return msg, docs.View(), usage, nil
}
