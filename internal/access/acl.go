package access

import (
	"fmt"

	"github.com/lumen-lms/apiserver/internal/apperr"
	"github.com/lumen-lms/apiserver/types"
)

// Action is an operation an actor attempts on an entity.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Kind names a content entity type.
type Kind string

const (
	KindIndex   Kind = "index"
	KindCourse  Kind = "course"
	KindSection Kind = "section"
	KindLecture Kind = "lecture"
	KindFile    Kind = "file"
)

// Actor is the authenticated principal.
type Actor struct {
	ID   int64
	Role types.Role
}

// ActorOf builds an Actor from a user row.
func ActorOf(user types.User) Actor {
	return Actor{ID: user.ID, Role: user.Role}
}

// Node is a content entity reduced to what the rules need: its kind, the
// owner traced up the created_by chain, and whether it is active. For
// sections, lectures and files Active is the parent course's flag.
type Node struct {
	Kind    Kind
	ID      int64
	OwnerID int64
	Active  bool
}

// IndexNode builds the node for an index.
func IndexNode(index types.Index) Node {
	return Node{Kind: KindIndex, ID: index.ID, OwnerID: index.CreatedBy, Active: index.IsActive}
}

// CourseNode builds the node for a course.
func CourseNode(course types.Course) Node {
	return Node{Kind: KindCourse, ID: course.ID, OwnerID: course.CreatedBy, Active: course.IsActive}
}

// TracedNode builds the node for a section, lecture or file from its trace.
func TracedNode(kind Kind, id int64, trace types.ContentTrace) Node {
	return Node{Kind: kind, ID: id, OwnerID: trace.OwnerID, Active: trace.CourseActive}
}

// Decision is the outcome of a rule evaluation. A denied decision is either
// Hidden (the actor must not learn the entity exists) or plainly forbidden.
type Decision struct {
	Allowed bool
	Hidden  bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func forbid(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

func hide(format string, args ...any) Decision {
	return Decision{Hidden: true, Reason: fmt.Sprintf(format, args...)}
}

// Err converts a denial into NotFound (hidden) or Forbidden; nil when allowed.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Hidden:
		return apperr.NotFound("%s", d.Reason)
	default:
		return apperr.Forbidden("%s", d.Reason)
	}
}

// CanAccessContent decides whether actor may perform action on node.
// assigned tells whether a learner's resolved course set covers the node; it
// is ignored for every other role.
func CanAccessContent(actor Actor, action Action, node Node, assigned bool) Decision {
	switch actor.Role {
	case types.RoleAdmin:
		if action == ActionRead {
			return allow()
		}
		return forbid("administrators cannot author content")
	case types.RoleTrainer, types.RoleCRM:
		if node.OwnerID == actor.ID {
			return allow()
		}
		return forbid("you do not own this %s", node.Kind)
	case types.RoleCandidate, types.RoleOther:
		readable := node.Active && assigned
		if !readable {
			return hide("%s not found", node.Kind)
		}
		if action != ActionRead {
			return forbid("learners have read-only access")
		}
		return allow()
	default:
		return hide("%s not found", node.Kind)
	}
}

// CanCreateIndex decides whether actor may create a top-level index.
func CanCreateIndex(actor Actor) Decision {
	if actor.Role.IsAuthor() {
		return allow()
	}
	return forbid("only trainers and crm users can create content")
}

// CanManageUser decides whether actor may perform action on target.
func CanManageUser(actor Actor, action Action, target types.User) Decision {
	if target.ID == actor.ID && action == ActionRead {
		return allow()
	}
	switch actor.Role {
	case types.RoleAdmin:
		if action == ActionRead {
			return allow()
		}
		if target.Role == types.RoleAdmin {
			return forbid("administrators cannot be modified")
		}
		return allow()
	case types.RoleTrainer, types.RoleCRM:
		if target.IsCreatedBy(actor.ID) {
			return allow()
		}
		return forbid("you do not manage this user")
	case types.RoleCandidate, types.RoleOther:
		return hide("user not found")
	default:
		return hide("user not found")
	}
}

// CanCreateUser decides whether actor may provision an account with role.
func CanCreateUser(actor Actor, role types.Role) Decision {
	if CanManage(actor.Role, role) {
		return allow()
	}
	return forbid("a %s cannot create %s accounts", actor.Role, role)
}

// CanReassignOwner decides whether actor may move target under newOwner.
func CanReassignOwner(actor Actor, target, newOwner types.User) Decision {
	if d := CanManageUser(actor, ActionUpdate, target); !d.Allowed {
		return d
	}
	if !newOwner.IsActive {
		return forbid("new owner is inactive")
	}
	if !CanManage(newOwner.Role, target.Role) {
		return forbid("a %s cannot manage %s accounts", newOwner.Role, target.Role)
	}
	return allow()
}

// CanAssign decides whether actor may grant learner access to content owned by ownerID.
func CanAssign(actor Actor, learner types.User, ownerID int64) Decision {
	if !actor.Role.IsAuthor() {
		return forbid("only trainers and crm users can assign content")
	}
	if !learner.Role.IsLearner() {
		return forbid("content can only be assigned to learners")
	}
	if !learner.IsCreatedBy(actor.ID) {
		return forbid("you do not manage this user")
	}
	if ownerID != actor.ID {
		return forbid("you do not own this content")
	}
	return allow()
}
