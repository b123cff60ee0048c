package github

import (
	"context"
	"errors"
	"fmt"
)

// itemPageSize is the pagination window for board item listing.
const itemPageSize = 100

// GetProject resolves a board by owner login and number. Both user and
// organization ownership are tried; user first, since that is the common
// case for personal task boards.
func (c *Client) GetProject(ctx context.Context, owner string, number int) (*Project, error) {
	const userQuery = `
		query($owner: String!, $number: Int!) {
			user(login: $owner) {
				projectV2(number: $number) { id number title url }
			}
		}`
	const orgQuery = `
		query($owner: String!, $number: Int!) {
			organization(login: $owner) {
				projectV2(number: $number) { id number title url }
			}
		}`

	vars := map[string]any{"owner": owner, "number": number}

	var userOut struct {
		User struct {
			ProjectV2 *Project `json:"projectV2"`
		} `json:"user"`
	}
	err := c.execute(ctx, "GetProject(user)", "", userQuery, vars, &userOut, false)
	if err == nil && userOut.User.ProjectV2 != nil {
		return userOut.User.ProjectV2, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var orgOut struct {
		Organization struct {
			ProjectV2 *Project `json:"projectV2"`
		} `json:"organization"`
	}
	err = c.execute(ctx, "GetProject(org)", "", orgQuery, vars, &orgOut, false)
	if err == nil && orgOut.Organization.ProjectV2 != nil {
		return orgOut.Organization.ProjectV2, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return nil, fmt.Errorf("project %s/#%d: %w", owner, number, ErrNotFound)
}

// itemNode mirrors the wire shape of one board item.
type itemNode struct {
	ID      string `json:"id"`
	Content struct {
		Typename string `json:"__typename"`
		ID       string `json:"id"`
		Title    string `json:"title"`
		Body     string `json:"body"`
	} `json:"content"`
	FieldValues struct {
		Nodes []struct {
			Typename string `json:"__typename"`
			Text     string `json:"text"`
			Name     string `json:"name"`
			Field    struct {
				Name string `json:"name"`
			} `json:"field"`
		} `json:"nodes"`
	} `json:"fieldValues"`
}

func (n *itemNode) toItem() Item {
	it := Item{
		ID:          n.ID,
		ContentID:   n.Content.ID,
		Title:       n.Content.Title,
		Body:        n.Content.Body,
		FieldText:   make(map[string]string),
		FieldOption: make(map[string]string),
	}
	switch n.Content.Typename {
	case "Issue":
		it.ContentKind = ContentIssue
	default:
		it.ContentKind = ContentDraft
	}
	for _, fv := range n.FieldValues.Nodes {
		switch fv.Typename {
		case "ProjectV2ItemFieldTextValue":
			it.FieldText[fv.Field.Name] = fv.Text
		case "ProjectV2ItemFieldSingleSelectValue":
			it.FieldOption[fv.Field.Name] = fv.Name
		}
	}
	return it
}

// ListItems fetches every item on the board, walking cursor pages of
// itemPageSize until hasNextPage is false.
func (c *Client) ListItems(ctx context.Context, projectID string) ([]Item, error) {
	const query = `
		query($project: ID!, $first: Int!, $after: String) {
			node(id: $project) {
				... on ProjectV2 {
					items(first: $first, after: $after) {
						pageInfo { hasNextPage endCursor }
						nodes {
							id
							content {
								__typename
								... on DraftIssue { id title body }
								... on Issue { id title body }
							}
							fieldValues(first: 20) {
								nodes {
									__typename
									... on ProjectV2ItemFieldTextValue {
										text
										field { ... on ProjectV2FieldCommon { name } }
									}
									... on ProjectV2ItemFieldSingleSelectValue {
										name
										field { ... on ProjectV2FieldCommon { name } }
									}
								}
							}
						}
					}
				}
			}
		}`

	var items []Item
	var after *string
	for {
		vars := map[string]any{"project": projectID, "first": itemPageSize}
		if after != nil {
			vars["after"] = *after
		}
		var out struct {
			Node struct {
				Items struct {
					PageInfo struct {
						HasNextPage bool   `json:"hasNextPage"`
						EndCursor   string `json:"endCursor"`
					} `json:"pageInfo"`
					Nodes []itemNode `json:"nodes"`
				} `json:"items"`
			} `json:"node"`
		}
		if err := c.execute(ctx, "ListItems", "", query, vars, &out, false); err != nil {
			return nil, err
		}
		for i := range out.Node.Items.Nodes {
			items = append(items, out.Node.Items.Nodes[i].toItem())
		}
		if !out.Node.Items.PageInfo.HasNextPage {
			return items, nil
		}
		cursor := out.Node.Items.PageInfo.EndCursor
		after = &cursor
	}
}

// CreateDraftItem adds a draft-backed item to the board.
func (c *Client) CreateDraftItem(ctx context.Context, projectID, title, body string) (*CreateItemResult, error) {
	const mutation = `
		mutation($project: ID!, $title: String!, $body: String!) {
			addProjectV2DraftIssue(input: {projectId: $project, title: $title, body: $body}) {
				projectItem {
					id
					content { ... on DraftIssue { id } }
				}
			}
		}`
	var out struct {
		AddProjectV2DraftIssue struct {
			ProjectItem struct {
				ID      string `json:"id"`
				Content struct {
					ID string `json:"id"`
				} `json:"content"`
			} `json:"projectItem"`
		} `json:"addProjectV2DraftIssue"`
	}
	vars := map[string]any{"project": projectID, "title": title, "body": body}
	if err := c.execute(ctx, "CreateDraftItem", "", mutation, vars, &out, true); err != nil {
		return nil, err
	}
	return &CreateItemResult{
		ItemID:      out.AddProjectV2DraftIssue.ProjectItem.ID,
		ContentID:   out.AddProjectV2DraftIssue.ProjectItem.Content.ID,
		ContentKind: ContentDraft,
	}, nil
}

// GetRepositoryID resolves a repository node id from "owner/name".
func (c *Client) GetRepositoryID(ctx context.Context, owner, name string) (string, error) {
	const query = `
		query($owner: String!, $name: String!) {
			repository(owner: $owner, name: $name) { id }
		}`
	var out struct {
		Repository struct {
			ID string `json:"id"`
		} `json:"repository"`
	}
	vars := map[string]any{"owner": owner, "name": name}
	if err := c.execute(ctx, "GetRepositoryID", "", query, vars, &out, false); err != nil {
		return "", err
	}
	if out.Repository.ID == "" {
		return "", fmt.Errorf("repository %s/%s: %w", owner, name, ErrNotFound)
	}
	return out.Repository.ID, nil
}

// CreateIssueItem creates a real repository issue and attaches it to the
// board, for installations that want items to live in the issue tracker
// instead of as drafts.
func (c *Client) CreateIssueItem(ctx context.Context, projectID, repositoryID, title, body string) (*CreateItemResult, error) {
	const createIssue = `
		mutation($repo: ID!, $title: String!, $body: String!) {
			createIssue(input: {repositoryId: $repo, title: $title, body: $body}) {
				issue { id }
			}
		}`
	var issueOut struct {
		CreateIssue struct {
			Issue struct {
				ID string `json:"id"`
			} `json:"issue"`
		} `json:"createIssue"`
	}
	vars := map[string]any{"repo": repositoryID, "title": title, "body": body}
	if err := c.execute(ctx, "CreateIssue", "", createIssue, vars, &issueOut, true); err != nil {
		return nil, err
	}
	issueID := issueOut.CreateIssue.Issue.ID

	const addItem = `
		mutation($project: ID!, $content: ID!) {
			addProjectV2ItemById(input: {projectId: $project, contentId: $content}) {
				item { id }
			}
		}`
	var addOut struct {
		AddProjectV2ItemByID struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemById"`
	}
	vars = map[string]any{"project": projectID, "content": issueID}
	if err := c.execute(ctx, "AddItemToProject", "", addItem, vars, &addOut, true); err != nil {
		return nil, err
	}
	return &CreateItemResult{
		ItemID:      addOut.AddProjectV2ItemByID.Item.ID,
		ContentID:   issueID,
		ContentKind: ContentIssue,
	}, nil
}

// UpdateItemFieldValue sets one field on one item. Mutations targeting the
// same item are serialized by the client.
func (c *Client) UpdateItemFieldValue(ctx context.Context, projectID, itemID, fieldID string, value FieldValue) error {
	const mutation = `
		mutation($project: ID!, $item: ID!, $field: ID!, $value: ProjectV2FieldValue!) {
			updateProjectV2ItemFieldValue(input: {
				projectId: $project, itemId: $item, fieldId: $field, value: $value
			}) {
				projectV2Item { id }
			}
		}`
	vars := map[string]any{
		"project": projectID,
		"item":    itemID,
		"field":   fieldID,
		"value":   value,
	}
	return c.execute(ctx, "UpdateItemFieldValue", itemID, mutation, vars, nil, true)
}

// UpdateDraftBody rewrites the title and body of a draft-backed item.
// contentID is the DraftIssue id, not the project item id.
func (c *Client) UpdateDraftBody(ctx context.Context, contentID, title, body string) error {
	const mutation = `
		mutation($draft: ID!, $title: String!, $body: String!) {
			updateProjectV2DraftIssue(input: {draftIssueId: $draft, title: $title, body: $body}) {
				draftIssue { id }
			}
		}`
	vars := map[string]any{"draft": contentID, "title": title, "body": body}
	return c.execute(ctx, "UpdateDraftBody", contentID, mutation, vars, nil, true)
}

// UpdateIssueBody rewrites the title and body of an issue-backed item.
// contentID is the Issue id.
func (c *Client) UpdateIssueBody(ctx context.Context, contentID, title, body string) error {
	const mutation = `
		mutation($issue: ID!, $title: String!, $body: String!) {
			updateIssue(input: {id: $issue, title: $title, body: $body}) {
				issue { id }
			}
		}`
	vars := map[string]any{"issue": contentID, "title": title, "body": body}
	return c.execute(ctx, "UpdateIssueBody", contentID, mutation, vars, nil, true)
}

// DeleteItem removes an item from the board. Draft content disappears with
// the item; issue content survives in the repository.
func (c *Client) DeleteItem(ctx context.Context, projectID, itemID string) error {
	const mutation = `
		mutation($project: ID!, $item: ID!) {
			deleteProjectV2Item(input: {projectId: $project, itemId: $item}) {
				deletedItemId
			}
		}`
	vars := map[string]any{"project": projectID, "item": itemID}
	return c.execute(ctx, "DeleteItem", itemID, mutation, vars, nil, true)
}

// GetFields lists the board's fields with their options.
func (c *Client) GetFields(ctx context.Context, projectID string) ([]Field, error) {
	const query = `
		query($project: ID!) {
			node(id: $project) {
				... on ProjectV2 {
					fields(first: 50) {
						nodes {
							... on ProjectV2Field { id name dataType }
							... on ProjectV2SingleSelectField {
								id name dataType
								options { id name }
							}
						}
					}
				}
			}
		}`
	var out struct {
		Node struct {
			Fields struct {
				Nodes []Field `json:"nodes"`
			} `json:"fields"`
		} `json:"node"`
	}
	vars := map[string]any{"project": projectID}
	if err := c.execute(ctx, "GetFields", "", query, vars, &out, false); err != nil {
		return nil, err
	}
	// Unmatched fragment cases come back as empty objects.
	fields := out.Node.Fields.Nodes[:0]
	for _, f := range out.Node.Fields.Nodes {
		if f.ID != "" {
			fields = append(fields, f)
		}
	}
	return fields, nil
}

// SelectOptionInput is one option of a single-select field being created.
// The API requires color and description even when callers don't care.
type SelectOptionInput struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// CreateField adds a field to the board. options applies only to
// single-select fields.
func (c *Client) CreateField(ctx context.Context, projectID, name, dataType string, options []SelectOptionInput) (*Field, error) {
	const mutation = `
		mutation($project: ID!, $name: String!, $dataType: ProjectV2CustomFieldType!, $options: [ProjectV2SingleSelectFieldOptionInput!]) {
			createProjectV2Field(input: {
				projectId: $project, name: $name, dataType: $dataType,
				singleSelectOptions: $options
			}) {
				projectV2Field {
					... on ProjectV2Field { id name dataType }
					... on ProjectV2SingleSelectField {
						id name dataType
						options { id name }
					}
				}
			}
		}`
	vars := map[string]any{
		"project":  projectID,
		"name":     name,
		"dataType": dataType,
	}
	if dataType == FieldTypeSingleSelect {
		vars["options"] = options
	}
	var out struct {
		CreateProjectV2Field struct {
			ProjectV2Field Field `json:"projectV2Field"`
		} `json:"createProjectV2Field"`
	}
	if err := c.execute(ctx, "CreateField", "", mutation, vars, &out, true); err != nil {
		return nil, err
	}
	f := out.CreateProjectV2Field.ProjectV2Field
	return &f, nil
}

// AddFieldOptions rewrites a single-select field's option set. The API has
// no append operation; the caller passes the full desired list (existing
// options included) and gets the refreshed field back.
func (c *Client) AddFieldOptions(ctx context.Context, fieldID, name string, options []SelectOptionInput) (*Field, error) {
	const mutation = `
		mutation($field: ID!, $name: String!, $options: [ProjectV2SingleSelectFieldOptionInput!]!) {
			updateProjectV2Field(input: {
				fieldId: $field, name: $name, singleSelectOptions: $options
			}) {
				projectV2Field {
					... on ProjectV2SingleSelectField {
						id name dataType
						options { id name }
					}
				}
			}
		}`
	vars := map[string]any{"field": fieldID, "name": name, "options": options}
	var out struct {
		UpdateProjectV2Field struct {
			ProjectV2Field Field `json:"projectV2Field"`
		} `json:"updateProjectV2Field"`
	}
	if err := c.execute(ctx, "AddFieldOptions", "", mutation, vars, &out, true); err != nil {
		return nil, err
	}
	f := out.UpdateProjectV2Field.ProjectV2Field
	return &f, nil
}

// GetOwnerID resolves a user or organization login to its node id for
// project creation.
func (c *Client) GetOwnerID(ctx context.Context, login string) (string, error) {
	const query = `
		query($login: String!) {
			repositoryOwner(login: $login) { id }
		}`
	var out struct {
		RepositoryOwner struct {
			ID string `json:"id"`
		} `json:"repositoryOwner"`
	}
	vars := map[string]any{"login": login}
	if err := c.execute(ctx, "GetOwnerID", "", query, vars, &out, false); err != nil {
		return "", err
	}
	if out.RepositoryOwner.ID == "" {
		return "", fmt.Errorf("owner %s: %w", login, ErrNotFound)
	}
	return out.RepositoryOwner.ID, nil
}

// CreateProject creates a new board under the given owner.
func (c *Client) CreateProject(ctx context.Context, ownerID, title string) (*Project, error) {
	const mutation = `
		mutation($owner: ID!, $title: String!) {
			createProjectV2(input: {ownerId: $owner, title: $title}) {
				projectV2 { id number title url }
			}
		}`
	var out struct {
		CreateProjectV2 struct {
			ProjectV2 Project `json:"projectV2"`
		} `json:"createProjectV2"`
	}
	vars := map[string]any{"owner": ownerID, "title": title}
	if err := c.execute(ctx, "CreateProject", "", mutation, vars, &out, true); err != nil {
		return nil, err
	}
	p := out.CreateProjectV2.ProjectV2
	return &p, nil
}
