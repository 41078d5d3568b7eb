package outlook

// CSS selectors for the Outlook Web mail surface. These are the contract
// with the rendered UI; when Outlook ships a redesign, this file is where
// the breakage lands.
const (
	// InboxURL is the mailbox view the watcher drives.
	InboxURL = "https://outlook.office.com/mail/inbox"

	// selConversationRows matches the rows of the conversation list.
	selConversationRows = "div[role='option'][data-focusable-row='true']"
	// attrConversationID carries the mailbox-assigned conversation id.
	attrConversationID = "data-convid"
	// selConversationByID locates one conversation row (Sprintf).
	selConversationByID = "div[role='option'][data-convid='%s']"

	// selMessageContainers matches the per-message cards of an opened
	// conversation, newest first.
	selMessageContainers = "div[data-app-section='ConversationContainer'] > div > div > div[aria-expanded], div#extendedCardFullViewCollapsableWrapperBodyCustomScrollBar"
	// selSubject is the conversation-level subject heading.
	selSubject = "div[role='heading'][aria-level='2'] span"
	// selExpandedBody appears once a collapsed card has rendered its body.
	selExpandedBody = "div.wide-content-host, div[role='document']"
	// selContentBlocks matches the content hosts inside one card.
	selContentBlocks = "div.wide-content-host, div.qaYammerOutlookThreadView"
	// selTimestamp is the sent/received time label inside a card.
	selTimestamp = "div[data-testid='SentReceivedSavedTime']"

	// selRecipientField locates a To:/Cc: field container (Sprintf).
	selRecipientField = "div[role='edit'][aria-label^='%s']"
	// selExpandOthers is the "+N others" control inside a recipient field.
	selExpandOthers = "button[id='plusOthersButton']"
	// selRecipientChips matches the participant chips of a field.
	selRecipientChips = "span[aria-label][role='button']"
	// selSenderChips matches the sender buttons of a message card (Sprintf).
	selSenderChips = "span[aria-label^='%s'][role='button'][aria-haspopup='dialog']:not([tabindex='-1'])"
	// selContactCard is the contact detail surface a chip click opens.
	selContactCard = "div[data-log-name='Chat'], div[data-log-name='Email']"
	// selContactEmail holds the address inside the contact card.
	selContactEmail = "button span[title]"

	// selMoveMenuItem is the context-menu Move entry.
	selMoveMenuItem = "div[role='menuitem'][aria-label='Move']"
	// selFolderSearch is the folder search box of the Move dialog.
	selFolderSearch = "input[placeholder='Search for a folder']"
	// selFolderByTitle locates a folder entry by name (Sprintf).
	selFolderByTitle = "div[role='menuitem'][title='%s']"

	// notificationPaneCSS suppresses the toast region that otherwise
	// overlaps conversation rows.
	notificationPaneCSS = "[data-app-section='NotificationPane'] { display: none !important; }"
)
