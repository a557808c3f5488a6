package mcpserver

// MetadataContract describes the notebook metadata nbhugo reads front matter
// and the render destination from.
const MetadataContract = `# nbhugo Notebook Metadata Contract

A notebook becomes a blog post through two keys in its top-level ` + "`" + `metadata` + "`" + ` object.

` + "```" + `json
{
  "metadata": {
    "front-matter": {
      "title": "Weekly numbers",
      "subtitle": "Generic subtitle",
      "date": "2024-06-01",
      "slug": "weekly-numbers",
      "toc": "true"
    },
    "hugo-jupyter": {
      "render-to": "content/post/"
    }
  }
}
` + "```" + `

## Rules

1. **front-matter** is copied into the post header. Any extra keys are kept.
2. **slug** names the post (` + "`" + `<render-to><slug>.md` + "`" + `) and the notebook file.
   A notebook whose file name differs from its slug is renamed.
3. **date** is ` + "`" + `YYYY-MM-DD` + "`" + `. New notebooks get the current date.
4. **toc** is the string ` + "`" + `"true"` + "`" + ` or ` + "`" + `"false"` + "`" + `.
5. **render-to** is a content directory with a trailing slash.
6. Notebooks whose name is hidden or contains "Untitled" are never touched.

## Outputs

- Code cells become fenced blocks in the kernel language. Empty cells are dropped.
- Image outputs are written to ` + "`" + `static/resources/<section>/<slug>/` + "`" + ` and
  linked as ` + "`" + `/resources/<section>/<slug>/<file>` + "`" + `.
- The post starts with the front matter followed by ` + "`" + `<!--more-->` + "`" + `.
`
