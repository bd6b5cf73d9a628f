package server

import (
	"errors"
	"log"

	"chatd/db"
	"chatd/protocol"
)

const sessionHelp = "Available commands:\n" +
	"<username>: <message> - send a message to a mutual friend\n" +
	"ADD <username>        - add a user to your friends list\n" +
	"DELETE <username>     - remove a user from your friends list\n" +
	"STATUS                - list your friends and whether they are online\n" +
	"HELP                  - show this summary\n" +
	"EXIT                  - disconnect"

// dispatch handles one post-auth line. It returns true when the receive
// worker should terminate.
func (s *Server) dispatch(sess *Session, line string) bool {
	cmd := protocol.ParseSession(line)

	switch cmd.Kind {
	case protocol.Send:
		s.deliver(sess, cmd.Name, cmd.Arg)
	case protocol.Add:
		s.addFriend(sess, cmd.Name)
	case protocol.Delete:
		s.deleteFriend(sess, cmd.Name)
	case protocol.Status:
		s.friendStatus(sess)
	case protocol.Help:
		sess.Enqueue(sessionHelp)
	case protocol.Exit:
		sess.Enqueue(farewell)
		sess.EnqueueFinal()
		return true
	default:
		sess.Enqueue("unknown command, type HELP")
	}

	return false
}

// deliver routes a message through the mutual-friendship gate. The check
// order is fixed: recipient existence, then the sender's edge, then the
// reciprocal edge; each failure has its own reply.
func (s *Server) deliver(sender *Session, recipient, text string) {
	exists, err := s.db.UserExists(recipient)
	if err != nil {
		s.storeFault(sender, "deliver", err)
		return
	}
	if !exists {
		sender.Enqueue("user " + recipient + " doesn't exist.")
		return
	}

	outbound, err := s.db.FriendExists(sender.Username, recipient)
	if err != nil {
		s.storeFault(sender, "deliver", err)
		return
	}
	if !outbound {
		sender.Enqueue("you don't have " + recipient + " in your friends list.")
		return
	}

	inbound, err := s.db.FriendExists(recipient, sender.Username)
	if err != nil {
		s.storeFault(sender, "deliver", err)
		return
	}
	if !inbound {
		sender.Enqueue(recipient + " doesn't have you in their friends list.")
		return
	}

	formatted := sender.Username + ": " + text

	// A session that is draining towards its sentinel refuses the enqueue;
	// the message falls back to the offline store like any other.
	if peer, ok := s.getPresence(recipient); ok && peer.Enqueue(formatted) {
		s.metrics.RecordMessageRouted()
		return
	}

	if err := s.db.EnqueueOffline(recipient, formatted); err != nil {
		s.storeFault(sender, "deliver", err)
		return
	}
	s.metrics.RecordMessageQueued()
	sender.Enqueue(recipient + " is offline, message queued.")
}

func (s *Server) addFriend(sess *Session, name string) {
	exists, err := s.db.UserExists(name)
	if err != nil {
		s.storeFault(sess, "add", err)
		return
	}
	if !exists {
		sess.Enqueue("user " + name + " doesn't exist.")
		return
	}

	created, err := s.db.AddFriend(sess.Username, name)
	if err != nil {
		s.storeFault(sess, "add", err)
		return
	}
	if !created {
		sess.Enqueue(name + " is already in your friends list")
		return
	}

	sess.Enqueue(name + " added to your friends list")
}

func (s *Server) deleteFriend(sess *Session, name string) {
	err := s.db.RemoveFriend(sess.Username, name)
	if errors.Is(err, db.ErrNoRows) {
		sess.Enqueue(name + " is not in your friends list")
		return
	}
	if err != nil {
		s.storeFault(sess, "delete", err)
		return
	}

	sess.Enqueue(name + " removed from your friends list")
}

func (s *Server) friendStatus(sess *Session) {
	friends, err := s.db.GetFriends(sess.Username)
	if err != nil {
		s.storeFault(sess, "status", err)
		return
	}

	if len(friends) == 0 {
		sess.Enqueue("your friends list is empty")
		return
	}

	for _, friend := range friends {
		if _, online := s.getPresence(friend); online {
			sess.Enqueue(friend + " ONLINE")
		} else {
			sess.Enqueue(friend + " OFFLINE")
		}
	}
}

func (s *Server) storeFault(sess *Session, operation string, err error) {
	log.Printf("Store error in %s for %s: %v", operation, sess.Username, err)
	sess.Enqueue(storeFailure)
}
