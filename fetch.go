package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/spf13/cobra"

	"github.com/firefart/dmarcsummary/internal/archive"
	"github.com/firefart/dmarcsummary/internal/config"
	"github.com/firefart/dmarcsummary/internal/imap"
	"github.com/firefart/dmarcsummary/internal/presenter"
	"github.com/firefart/dmarcsummary/internal/summary"
)

func newIMAPCommand() *cobra.Command {
	var configFile string
	var deleteProcessed bool

	cmd := &cobra.Command{
		Use:   "imap",
		Short: "Fetch DMARC reports from an IMAP mailbox and summarize them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return runIMAP(ctx, configFile, deleteProcessed)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "config file to use")
	cmd.Flags().BoolVar(&deleteProcessed, "delete", false, "mark processed messages as deleted")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runIMAP(ctx context.Context, configFile string, deleteProcessed bool) error {
	defaults := config.Configuration{
		BatchSize: 30,
		ImapConfig: config.IMAPConfig{
			Timeout: config.Duration{Duration: 30 * time.Second},
		},
	}

	settings, err := config.GetConfig(defaults, configFile)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", configFile, err)
	}

	// run in batch sizes as some IMAP servers have pretty short timeouts
	// and the imap library does not handle reconnects
	var entries []summary.Entry
	hasMore := true
	for hasMore {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		var batch []summary.Entry
		batch, hasMore, err = fetchBatch(ctx, settings, deleteProcessed)
		if err != nil {
			return err
		}
		entries = append(entries, batch...)
	}

	if len(entries) == 0 {
		logger.Info("no DMARC reports found in mailbox")
		return nil
	}

	text, summarized := summary.Summarize(entries)
	if summarized == 0 {
		return fmt.Errorf("no valid reports found: %w", entryErrors(entries))
	}
	return (presenter.Terminal{W: os.Stdout}).Present(text)
}

func fetchBatch(ctx context.Context, settings *config.Configuration, deleteProcessed bool) ([]summary.Entry, bool, error) {
	c, err := imap.Connect(settings.ImapConfig, logger.StandardLog())
	if err != nil {
		return nil, false, fmt.Errorf("could not connect to %s: %w", settings.ImapConfig.Host, err)
	}

	logger.Debug("connected to imap server")

	defer func() {
		if err := c.Logout(); err != nil {
			logger.Errorf("error on logout: %v", err)
		}
	}()

	if err := c.Login(settings.ImapConfig.User, settings.ImapConfig.Pass); err != nil {
		return nil, false, fmt.Errorf("could not login: %w", err)
	}

	logger.Debug("successful login")

	hasFolder, err := imap.HasFolder(c, settings.ImapConfig.Folder)
	if err != nil {
		return nil, false, fmt.Errorf("could not check if folder %s exists: %w", settings.ImapConfig.Folder, err)
	}

	if !hasFolder {
		return nil, false, fmt.Errorf("imap folder %s not found in account", settings.ImapConfig.Folder)
	}

	mbox, err := c.Select(settings.ImapConfig.Folder, false)
	if err != nil {
		return nil, false, fmt.Errorf("could not select folder %s: %w", settings.ImapConfig.Folder, err)
	}

	logger.Infof("opened %s with %d messages (%d unread)", mbox.Name, mbox.Messages, mbox.Unseen)

	criteria := goimap.NewSearchCriteria()
	criteria.WithoutFlags = []string{goimap.DeletedFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, false, fmt.Errorf("could not search for mails: %w", err)
	}

	logger.Debugf("found %d mails without the DELETED flag", len(ids))

	if len(ids) == 0 {
		return nil, false, nil
	}

	// batching only makes sense when processed messages get expunged
	// between rounds, otherwise we would refetch the same messages forever
	seqset := new(goimap.SeqSet)
	hasMore := false
	if deleteProcessed && settings.BatchSize < len(ids) {
		seqset.AddNum(ids[:settings.BatchSize]...)
		hasMore = true
	} else {
		seqset.AddNum(ids...)
	}

	logger.Debugf("fetching the following messages: %v", seqset.String())

	section := &goimap.BodySectionName{}
	items := []goimap.FetchItem{
		section.FetchItem(),
		goimap.FetchEnvelope,
		goimap.FetchFlags,
		goimap.FetchUid,
	}

	messages := make(chan *goimap.Message)
	done := make(chan error)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var entries []summary.Entry
	var toDelete []uint32
	msgCounter := 0
	for msg := range messages {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		default:
		}
		logger.Infof("processing email %s (UID %d)", msg.Envelope.Subject, msg.Uid)
		msgEntries, err := processMessage(msg)
		if err != nil {
			logger.Errorf("message %s does not seem to be a valid dmarc report: %v", msg.Envelope.Subject, err)
		}
		entries = append(entries, msgEntries...)
		// always mark a processed message so junk gets cleaned up too
		toDelete = append(toDelete, msg.Uid)
		msgCounter++
	}

	logger.Debug("waiting for fetch to finish")

	if err := <-done; err != nil {
		return nil, false, fmt.Errorf("error on fetch: %w", err)
	}

	if deleteProcessed {
		for _, uid := range toDelete {
			logger.Infof("marking message %d as deleted", uid)
			if err := imap.MarkMessageAsDeleted(c, uid); err != nil {
				logger.Errorf("could not set delete flag on message %d: %v", uid, err)
				continue
			}
		}

		logger.Info("running expunge command (delete all marked messages)")
		if err := c.Expunge(nil); err != nil {
			return nil, false, fmt.Errorf("could not expunge: %w", err)
		}
	}

	logger.Infof("processed %d emails", msgCounter)

	return entries, hasMore, nil
}

func processMessage(msg *goimap.Message) ([]summary.Entry, error) {
	r := msg.GetBody(&goimap.BodySectionName{})
	if r == nil {
		return nil, fmt.Errorf("server didn't return message body")
	}

	payloads, err := archive.ExtractMail(msg.Envelope.Subject, r)
	if err != nil {
		return nil, err
	}
	return parseAll(payloads), nil
}
