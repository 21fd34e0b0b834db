package main

import (
	"fmt"

	"github.com/fwojciec/listgrab"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Run executes the templates list command.
func (c *TemplatesListCmd) Run(deps *Dependencies) error {
	filter := listgrab.TemplateFilter{}
	if c.Host != "" {
		filter.Host = &c.Host
	}
	templates, err := deps.Templates.FindTemplates(deps.Ctx, filter)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", message(err))
		return err
	}

	if len(templates) == 0 {
		fmt.Fprintln(deps.Stdout, "No templates found. Use 'listgrab grab --save-template' to create one.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(deps.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Host", "Name", "Items", "Created"})
	for _, tmpl := range templates {
		t.AppendRow(table.Row{
			tmpl.Host,
			tmpl.Name,
			tmpl.FullItemSelector,
			tmpl.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	t.Render()
	return nil
}

// Run executes the templates delete command.
func (c *TemplatesDeleteCmd) Run(deps *Dependencies) error {
	if !c.Force {
		fmt.Fprintf(deps.Stderr, "error: use --force to confirm deletion\n")
		return listgrab.Errorf(listgrab.EINVALID, "use --force to confirm deletion")
	}

	tmpl, err := findTemplate(deps.Ctx, deps, c.Host, c.Name)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", message(err))
		return err
	}
	if err := deps.Templates.DeleteTemplate(deps.Ctx, tmpl.ID); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", message(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "Deleted template %q for %s\n", tmpl.Name, tmpl.Host)
	return nil
}
