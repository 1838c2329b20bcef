package directory

// Directory topic names on the pub/sub transport.
const (
	// TopicGlobal carries announcements and queries visible to everyone.
	TopicGlobal = "directory.global"

	groupTopicPrefix = "directory.group."
)

// GroupTopic returns the directory topic scoped to one group.
func GroupTopic(group string) string {
	return groupTopicPrefix + group
}

// AnnounceTopics computes the topic set a profile's announcements are
// published to. Friends and private visibility never broadcast.
func AnnounceTopics(p Profile) []string {
	switch p.Visibility {
	case VisibilityPublic:
		return []string{TopicGlobal}
	case VisibilityGroups:
		topics := make([]string, 0, len(p.Groups))
		for _, g := range p.Groups {
			topics = append(topics, GroupTopic(g))
		}
		return topics
	default:
		return nil
	}
}

// QueryTopics computes the topic set a discovery query is published to:
// always the global topic, plus the topic of every group filter.
func QueryTopics(f Filters) []string {
	topics := []string{TopicGlobal}
	for _, g := range f.Groups {
		topics = append(topics, GroupTopic(g))
	}
	return topics
}

// ListenTopics computes the topic set the local participant observes: the
// global topic plus the topics of its own groups.
func ListenTopics(p Profile) []string {
	topics := []string{TopicGlobal}
	for _, g := range p.Groups {
		topics = append(topics, GroupTopic(g))
	}
	return topics
}
