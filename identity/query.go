package identity

import (
	"context"

	"github.com/bpm-extensions/keycloak-identity/models"
)

// UserQuery is a staged filter specification over the realm's users. Filter
// methods use value semantics: each call returns a new specification, so a
// query can be shared and extended concurrently without hidden state.
// Filters combine with logical AND; an empty specification matches the
// maximal visible set.
type UserQuery struct {
	provider *Provider

	id            string
	idIn          []string
	hasIDIn       bool
	username      string
	usernameLike  string
	email         string
	emailLike     string
	firstName     string
	firstNameLike string
	lastName      string
	lastNameLike  string
	groupID       string

	firstResult int
	maxResults  int
	hasPage     bool
}

// UserID restricts the result to the user with exactly this engine id.
func (q UserQuery) UserID(id string) UserQuery { q.id = id; return q }

// UserIDIn restricts the result to users whose engine id is in the set.
// An empty set matches nothing.
func (q UserQuery) UserIDIn(ids ...string) UserQuery {
	q.idIn = append([]string(nil), ids...)
	q.hasIDIn = true
	return q
}

// Username restricts by exact username.
func (q UserQuery) Username(username string) UserQuery { q.username = username; return q }

// UsernameLike restricts by a wildcard pattern on the username.
func (q UserQuery) UsernameLike(pattern string) UserQuery { q.usernameLike = pattern; return q }

// Email restricts by exact email address.
func (q UserQuery) Email(email string) UserQuery { q.email = email; return q }

// EmailLike restricts by a wildcard pattern on the email address.
func (q UserQuery) EmailLike(pattern string) UserQuery { q.emailLike = pattern; return q }

// FirstName restricts by exact first name.
func (q UserQuery) FirstName(name string) UserQuery { q.firstName = name; return q }

// FirstNameLike restricts by a wildcard pattern on the first name.
func (q UserQuery) FirstNameLike(pattern string) UserQuery { q.firstNameLike = pattern; return q }

// LastName restricts by exact last name.
func (q UserQuery) LastName(name string) UserQuery { q.lastName = name; return q }

// LastNameLike restricts by a wildcard pattern on the last name.
func (q UserQuery) LastNameLike(pattern string) UserQuery { q.lastNameLike = pattern; return q }

// MemberOfGroup restricts to members of the given group. An unknown group
// id yields an empty result, not an error.
func (q UserQuery) MemberOfGroup(groupID string) UserQuery { q.groupID = groupID; return q }

// Page restricts the listing to a window of the filtered result set.
func (q UserQuery) Page(firstResult, maxResults int) UserQuery {
	q.firstResult = firstResult
	q.maxResults = maxResults
	q.hasPage = true
	return q
}

// List executes the query and returns all matching users in deterministic
// fetch order, deduplicated by id.
func (q UserQuery) List(ctx context.Context) ([]models.User, error) {
	users, err := q.run(ctx)
	if err != nil {
		return nil, err
	}
	return pageSlice(users, q.firstResult, q.maxResults, q.hasPage), nil
}

// SingleResult executes the query expecting at most one match. More than
// one surviving match is a usage error; no match yields a nil user.
func (q UserQuery) SingleResult(ctx context.Context) (*models.User, error) {
	users, err := q.run(ctx)
	if err != nil {
		return nil, err
	}
	switch len(users) {
	case 0:
		return nil, nil
	case 1:
		return &users[0], nil
	default:
		return nil, ErrNonUniqueResult
	}
}

// Count executes the query and returns the number of matches.
func (q UserQuery) Count(ctx context.Context) (int, error) {
	users, err := q.run(ctx)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

// GroupQuery is a staged filter specification over the realm's groups and,
// when enabled, its realm roles. Same value semantics as UserQuery.
type GroupQuery struct {
	provider *Provider

	id       string
	idIn     []string
	hasIDIn  bool
	name     string
	nameLike string
	typ      string
	member   string

	firstResult int
	maxResults  int
	hasPage     bool
}

// GroupID restricts the result to the group with exactly this id.
func (q GroupQuery) GroupID(id string) GroupQuery { q.id = id; return q }

// GroupIDIn restricts the result to groups whose id is in the set. An
// empty set matches nothing.
func (q GroupQuery) GroupIDIn(ids ...string) GroupQuery {
	q.idIn = append([]string(nil), ids...)
	q.hasIDIn = true
	return q
}

// GroupName restricts by exact group name.
func (q GroupQuery) GroupName(name string) GroupQuery { q.name = name; return q }

// GroupNameLike restricts by a wildcard pattern on the group name.
func (q GroupQuery) GroupNameLike(pattern string) GroupQuery { q.nameLike = pattern; return q }

// GroupType restricts by group type.
func (q GroupQuery) GroupType(typ string) GroupQuery { q.typ = typ; return q }

// GroupMember restricts to groups the given user is a member of. An
// unknown user id yields an empty result, not an error.
func (q GroupQuery) GroupMember(userID string) GroupQuery { q.member = userID; return q }

// Page restricts the listing to a window of the filtered result set.
func (q GroupQuery) Page(firstResult, maxResults int) GroupQuery {
	q.firstResult = firstResult
	q.maxResults = maxResults
	q.hasPage = true
	return q
}

// List executes the query and returns all matching groups.
func (q GroupQuery) List(ctx context.Context) ([]models.Group, error) {
	groups, err := q.run(ctx)
	if err != nil {
		return nil, err
	}
	return pageSlice(groups, q.firstResult, q.maxResults, q.hasPage), nil
}

// SingleResult executes the query expecting at most one match.
func (q GroupQuery) SingleResult(ctx context.Context) (*models.Group, error) {
	groups, err := q.run(ctx)
	if err != nil {
		return nil, err
	}
	switch len(groups) {
	case 0:
		return nil, nil
	case 1:
		return &groups[0], nil
	default:
		return nil, ErrNonUniqueResult
	}
}

// Count executes the query and returns the number of matches.
func (q GroupQuery) Count(ctx context.Context) (int, error) {
	groups, err := q.run(ctx)
	if err != nil {
		return 0, err
	}
	return len(groups), nil
}

func pageSlice[T any](list []T, first, max int, paged bool) []T {
	if !paged {
		return list
	}
	if first < 0 {
		first = 0
	}
	if first >= len(list) {
		return nil
	}
	list = list[first:]
	if max >= 0 && max < len(list) {
		list = list[:max]
	}
	return list
}
