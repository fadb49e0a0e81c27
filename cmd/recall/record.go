// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/recall/internal/record"
	sigilerr "github.com/sigil-dev/recall/pkg/errors"
)

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "record",
		Aliases: []string{"records"},
		Short:   "Add, update, list and delete knowledge records",
	}

	cmd.AddCommand(
		newRecordAddCmd(),
		newRecordUpdateCmd(),
		newRecordListCmd(),
		newRecordDeleteCmd(),
	)

	return cmd
}

func newRecordAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a record, index it and invalidate related cached answers",
		Args:  cobra.NoArgs,
		RunE:  runRecordAdd,
	}
	addRecordFlags(cmd)
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newRecordUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a record, reindex it and invalidate related cached answers",
		Long:  "Only the flags given are changed. Changing --kind replaces the record content with the new kind's parts.",
		Args:  cobra.ExactArgs(1),
		RunE:  runRecordUpdate,
	}
	addRecordFlags(cmd)
	return cmd
}

// addRecordFlags registers the record fields shared by add and update.
func addRecordFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("title", "", "record title (required for add)")
	f.String("description", "", "short description")
	f.StringSlice("tag", nil, "tag; repeatable")
	f.String("category", "", "html_css, javascript, python, gas, vba or other")
	f.String("kind", string(record.ContentKindCode), "content kind: code or manual")
	f.String("html", "", "file holding the HTML part of a code record")
	f.String("css", "", "file holding the CSS part of a code record")
	f.String("js", "", "file holding the script part of a code record")
	f.String("body", "", "file holding the body of a manual record")
	f.String("notes", "", "free-form notes")
	f.String("svg", "", "file holding a generated diagram")
	f.String("preview", "", "file holding a rendered HTML preview")
	f.String("image", "", "path of an attached image")
}

func newRecordListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored records",
		Args:  cobra.NoArgs,
		RunE:  runRecordList,
	}
	cmd.Flags().String("category", "", "only records in this category")
	cmd.Flags().String("search", "", "only records whose title, description or tags contain this keyword")
	return cmd
}

func newRecordDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record and its vector",
		Args:  cobra.ExactArgs(1),
		RunE:  runRecordDelete,
	}
}

func runRecordAdd(cmd *cobra.Command, _ []string) error {
	rec, err := recordFromFlags(cmd)
	if err != nil {
		return err
	}
	return runWithApp(cmd, wireOptions{}, func(ctx context.Context, app *App) error {
		id, err := app.Records.Add(ctx, rec)
		if err != nil {
			return err
		}
		n, err := app.Orchestrator.RecordWritten(ctx, rec)
		if err != nil {
			return sigilerr.Wrapf(err, sigilerr.CodeIndexDatabaseFailure, "record %s stored but not indexed, run index rebuild", id)
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Added record: %s\n", id)
		if n > 0 {
			_, _ = fmt.Fprintf(out, "Invalidated %d cached answer(s).\n", n)
		}
		return nil
	})
}

func runRecordUpdate(cmd *cobra.Command, args []string) error {
	id := args[0]
	return runWithApp(cmd, wireOptions{}, func(ctx context.Context, app *App) error {
		rec, err := app.Records.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return sigilerr.Errorf(sigilerr.CodeRecordGetNotFound, "record %q not found", id)
		}
		if err := applyRecordFlags(cmd, rec); err != nil {
			return err
		}

		ok, err := app.Records.Update(ctx, rec)
		if err != nil {
			return err
		}
		if !ok {
			return sigilerr.Errorf(sigilerr.CodeRecordGetNotFound, "record %q not found", id)
		}
		n, err := app.Orchestrator.RecordWritten(ctx, rec)
		if err != nil {
			return sigilerr.Wrapf(err, sigilerr.CodeIndexDatabaseFailure, "record %s updated but not reindexed, run index rebuild", id)
		}
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Updated record: %s\n", id)
		if n > 0 {
			_, _ = fmt.Fprintf(out, "Invalidated %d cached answer(s).\n", n)
		}
		return nil
	})
}

// recordFlags reads record fields from a command's flags, loading content
// parts from the named files.
type recordFlags struct{ cmd *cobra.Command }

func (r recordFlags) changed(name string) bool { return r.cmd.Flags().Changed(name) }

func (r recordFlags) str(name string) string {
	v, _ := r.cmd.Flags().GetString(name)
	return v
}

func (r recordFlags) file(name string) (string, error) {
	p := r.str(name)
	if p == "" {
		return "", nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "reading --%s: %w", name, err)
	}
	return string(data), nil
}

// recordFromFlags builds a new record from the add flags.
func recordFromFlags(cmd *cobra.Command) (*record.Record, error) {
	r := recordFlags{cmd: cmd}
	tags, _ := cmd.Flags().GetStringSlice("tag")
	rec := &record.Record{
		Title:       r.str("title"),
		Description: r.str("description"),
		Tags:        tags,
		Category:    record.Category(r.str("category")),
		Kind:        record.ContentKind(r.str("kind")),
		Notes:       r.str("notes"),
	}
	rec.Artifacts.ImagePath = r.str("image")

	var err error
	if rec.Artifacts.SVG, err = r.file("svg"); err != nil {
		return nil, err
	}
	if rec.Artifacts.HTML, err = r.file("preview"); err != nil {
		return nil, err
	}
	if err := r.content(rec, true); err != nil {
		return nil, err
	}
	return rec, nil
}

// applyRecordFlags overwrites the fields of rec whose flags were set.
func applyRecordFlags(cmd *cobra.Command, rec *record.Record) error {
	r := recordFlags{cmd: cmd}
	for name, dst := range map[string]*string{
		"title":       &rec.Title,
		"description": &rec.Description,
		"notes":       &rec.Notes,
		"image":       &rec.Artifacts.ImagePath,
	} {
		if r.changed(name) {
			*dst = r.str(name)
		}
	}
	if r.changed("category") {
		rec.Category = record.Category(r.str("category"))
	}
	if r.changed("tag") {
		rec.Tags, _ = cmd.Flags().GetStringSlice("tag")
	}
	for name, dst := range map[string]*string{
		"svg":     &rec.Artifacts.SVG,
		"preview": &rec.Artifacts.HTML,
	} {
		if !r.changed(name) {
			continue
		}
		v, err := r.file(name)
		if err != nil {
			return err
		}
		*dst = v
	}

	reset := r.changed("kind") && record.ContentKind(r.str("kind")) != rec.Kind
	if reset {
		rec.Kind = record.ContentKind(r.str("kind"))
	}
	return r.content(rec, reset)
}

// content fills the kind-specific parts of rec. With reset the content is
// rebuilt from the flags; otherwise only the parts whose flags were set change.
func (r recordFlags) content(rec *record.Record, reset bool) error {
	set := func(name string, dst *string) error {
		if !reset && !r.changed(name) {
			return nil
		}
		v, err := r.file(name)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}

	switch rec.Kind {
	case record.ContentKindCode:
		if reset || rec.Code == nil {
			rec.Code = &record.CodeContent{}
			rec.Manual = nil
		}
		for name, dst := range map[string]*string{"html": &rec.Code.HTML, "css": &rec.Code.CSS, "js": &rec.Code.JS} {
			if err := set(name, dst); err != nil {
				return err
			}
		}
	case record.ContentKindManual:
		if reset || rec.Manual == nil {
			rec.Manual = &record.ManualContent{}
			rec.Code = nil
		}
		if err := set("body", &rec.Manual.Body); err != nil {
			return err
		}
	default:
		return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "unknown --kind %q, want code or manual", rec.Kind)
	}
	return nil
}

func runRecordList(cmd *cobra.Command, _ []string) error {
	category, _ := cmd.Flags().GetString("category")
	keyword, _ := cmd.Flags().GetString("search")
	return runWithApp(cmd, wireOptions{}, func(ctx context.Context, app *App) error {
		var (
			recs []*record.Record
			err  error
		)
		switch {
		case keyword != "":
			recs, err = app.Records.SearchText(ctx, keyword)
		case record.NormalizeFilter(category) != "":
			recs, err = app.Records.ListByCategory(ctx, record.Category(category))
		default:
			recs, err = app.Records.ListAll(ctx)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(recs) == 0 {
			_, _ = fmt.Fprintln(out, "No records.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tCATEGORY\tKIND\tTITLE")
		for _, r := range recs {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Category.Label(), r.Kind, r.Title)
		}
		return tw.Flush()
	})
}

func runRecordDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	return runWithApp(cmd, wireOptions{}, func(ctx context.Context, app *App) error {
		ok, err := app.Records.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return sigilerr.Errorf(sigilerr.CodeRecordGetNotFound, "record %q not found", id)
		}
		if _, err := app.Orchestrator.RecordDeleted(ctx, id); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted record: %s\n", id)
		return nil
	})
}
