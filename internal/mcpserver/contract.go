package mcpserver

// LinkSyntax describes how wikilinks are written and how the graph resolves
// them. LLM consumers should read it before editing links.
const LinkSyntax = `# Link Syntax

Documents reference each other with double-bracket wikilinks. Every
occurrence becomes its own mentions edge, so linking the same document
twice yields two edges.

## Forms

` + "```" + `markdown
[[Target]]                 link by name
[[folder/Target]]          link by vault-relative path
[[Target|shown text]]      display text after the pipe
[[Target#Heading]]         link to a heading (anchors are recorded, not resolved)
[[Target^block-id]]        link to a block
[[#Heading]]               link to a heading in the same document
` + "```" + `

The ` + "`" + `.md` + "`" + ` extension is optional in targets.

## Resolution order

1. **Exact path.** If a document exists at ` + "`" + `<vault>/<target>` + "`" + ` (with or
   without the extension) the link points at it.
2. **Name.** Otherwise the last path segment of the target, without its
   extension, is compared case-insensitively against document names.
   - One document with that name: the link points at it.
   - No document: the link points at a placeholder with that name. The
     placeholder is replaced by the document as soon as one is created.
   - Several documents: the link is **ambiguous** and no edge is stored.

## Fixing ambiguous links

An ambiguous link is logged and dropped. Rewrite it with a path-qualified
target, e.g. ` + "`" + `[[projects/Plan]]` + "`" + ` instead of ` + "`" + `[[Plan]]` + "`" + `, or rename one of
the clashing documents. Use the get_backlinks and list_placeholders tools to
inspect what a name currently resolves to.

## Deletion

Deleting a document that others still link to turns it into a placeholder
with the same name; the links stay in the graph. Placeholders nobody links
to are removed.
`
