package sync

import "github.com/hyperengineering/fitsync/internal/types"

// Widens reports the kinds whose older remote rows may have become readable
// by userID now that next is in place. prev is the local row next replaced,
// nil when next is new to this device. Only a change into a granting state
// widens; a row that already granted has been accounted for.
func Widens(userID string, prev, next types.Record) []types.Kind {
	kinds := grants(userID, next)
	if len(kinds) == 0 || len(grants(userID, prev)) > 0 {
		return nil
	}
	return kinds
}

// grants lists what rec, as remote state, lets userID read.
func grants(userID string, rec types.Record) []types.Kind {
	if rec == nil || rec.Meta().Deleted {
		return nil
	}
	switch v := rec.(type) {
	case *types.Friend:
		if v.Status == types.FriendAccepted && v.Involves(userID) {
			return []types.Kind{types.KindFeedPost, types.KindFeedReaction}
		}
	case *types.GroupMember:
		if v.UserID == userID && v.Status == types.MemberActive {
			return []types.Kind{types.KindGroup, types.KindGroupMember, types.KindFeedPost, types.KindFeedReaction}
		}
	case *types.GroupInvite:
		if v.InviteeID == userID {
			return []types.Kind{types.KindGroup}
		}
	case *types.FeedPost:
		// Reactions on a post written before it reached us predate our cursor.
		if v.UserID != userID {
			return []types.Kind{types.KindFeedReaction}
		}
	}
	return nil
}
