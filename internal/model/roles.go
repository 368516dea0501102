package model

// Role is the shared semantic category every backend normalises into.
type Role string

const (
	RoleApplication   Role = "application"
	RoleWindow        Role = "window"
	RoleDialog        Role = "dialog"
	RoleButton        Role = "button"
	RoleCheckBox      Role = "checkbox"
	RoleRadioButton   Role = "radio_button"
	RoleToggleButton  Role = "toggle_button"
	RoleSlider        Role = "slider"
	RoleSpinButton    Role = "spin_button"
	RoleComboBox      Role = "combo_box"
	RoleTextField     Role = "text_field"
	RolePasswordField Role = "password_field"
	RoleStaticText    Role = "static_text"
	RoleLink          Role = "link"
	RoleImage         Role = "image"
	RoleMenu          Role = "menu"
	RoleMenuBar       Role = "menu_bar"
	RoleMenuItem      Role = "menu_item"
	RoleTabList       Role = "tab_list"
	RoleTab           Role = "tab"
	RoleList          Role = "list"
	RoleListItem      Role = "list_item"
	RoleTable         Role = "table"
	RoleRow           Role = "row"
	RoleCell          Role = "cell"
	RoleTree          Role = "tree"
	RoleTreeItem      Role = "tree_item"
	RoleGroup         Role = "group"
	RoleScrollArea    Role = "scroll_area"
	RoleScrollBar     Role = "scroll_bar"
	RoleToolbar       Role = "toolbar"
	RoleProgressBar   Role = "progress_bar"
	RoleDocument      Role = "document"
	RoleUnknown       Role = "unknown"
)

// AXRoleMap maps macOS AXRole values to shared roles.
var AXRoleMap = map[string]Role{
	"AXApplication":       RoleApplication,
	"AXWindow":            RoleWindow,
	"AXSheet":             RoleDialog,
	"AXButton":            RoleButton,
	"AXPopUpButton":       RoleComboBox,
	"AXMenuButton":        RoleButton,
	"AXCheckBox":          RoleCheckBox,
	"AXSwitch":            RoleToggleButton,
	"AXRadioButton":       RoleRadioButton,
	"AXSlider":            RoleSlider,
	"AXIncrementor":       RoleSpinButton,
	"AXComboBox":          RoleComboBox,
	"AXTextField":         RoleTextField,
	"AXTextArea":          RoleTextField,
	"AXStaticText":        RoleStaticText,
	"AXLink":              RoleLink,
	"AXImage":             RoleImage,
	"AXMenu":              RoleMenu,
	"AXMenuBar":           RoleMenuBar,
	"AXMenuBarItem":       RoleMenuItem,
	"AXMenuItem":          RoleMenuItem,
	"AXTabGroup":          RoleTabList,
	"AXRadioGroup":        RoleGroup,
	"AXList":              RoleList,
	"AXTable":             RoleTable,
	"AXOutline":           RoleTree,
	"AXRow":               RoleRow,
	"AXCell":              RoleCell,
	"AXGroup":             RoleGroup,
	"AXSplitGroup":        RoleGroup,
	"AXScrollArea":        RoleScrollArea,
	"AXScrollBar":         RoleScrollBar,
	"AXToolbar":           RoleToolbar,
	"AXProgressIndicator": RoleProgressBar,
	"AXWebArea":           RoleDocument,
}

// axSubroleMap overrides the role for subroles that change the semantics.
var axSubroleMap = map[string]Role{
	"AXSecureTextField": RolePasswordField,
	"AXDialog":          RoleDialog,
	"AXSystemDialog":    RoleDialog,
	"AXTabButton":       RoleTab,
	"AXOutlineRow":      RoleTreeItem,
	"AXSwitch":          RoleToggleButton,
}

// ATSPIRoleMap maps AT-SPI role enum values (AtspiRole) to shared roles.
var ATSPIRoleMap = map[uint32]Role{
	7:  RoleCheckBox,      // CHECK_BOX
	8:  RoleMenuItem,      // CHECK_MENU_ITEM
	11: RoleComboBox,      // COMBO_BOX
	16: RoleDialog,        // DIALOG
	20: RoleGroup,         // FILLER
	23: RoleWindow,        // FRAME
	27: RoleImage,         // IMAGE
	29: RoleStaticText,    // LABEL
	31: RoleList,          // LIST
	32: RoleListItem,      // LIST_ITEM
	33: RoleMenu,          // MENU
	34: RoleMenuBar,       // MENU_BAR
	35: RoleMenuItem,      // MENU_ITEM
	37: RoleTab,           // PAGE_TAB
	38: RoleTabList,       // PAGE_TAB_LIST
	39: RoleGroup,         // PANEL
	40: RolePasswordField, // PASSWORD_TEXT
	41: RoleMenu,          // POPUP_MENU
	42: RoleProgressBar,   // PROGRESS_BAR
	43: RoleButton,        // PUSH_BUTTON
	44: RoleRadioButton,   // RADIO_BUTTON
	45: RoleMenuItem,      // RADIO_MENU_ITEM
	48: RoleScrollBar,     // SCROLL_BAR
	49: RoleScrollArea,    // SCROLL_PANE
	51: RoleSlider,        // SLIDER
	52: RoleSpinButton,    // SPIN_BUTTON
	53: RoleGroup,         // SPLIT_PANE
	55: RoleTable,         // TABLE
	56: RoleCell,          // TABLE_CELL
	61: RoleTextField,     // TEXT
	62: RoleToggleButton,  // TOGGLE_BUTTON
	63: RoleToolbar,       // TOOL_BAR
	65: RoleTree,          // TREE
	66: RoleTree,          // TREE_TABLE
	69: RoleWindow,        // WINDOW
	73: RoleStaticText,    // PARAGRAPH
	75: RoleApplication,   // APPLICATION
	79: RoleTextField,     // ENTRY
	82: RoleDocument,      // DOCUMENT_FRAME
	83: RoleStaticText,    // HEADING
	85: RoleGroup,         // SECTION
	88: RoleLink,          // LINK
}

// UIAControlTypeMap maps UI Automation control type ids to shared roles.
var UIAControlTypeMap = map[int32]Role{
	50000: RoleButton,      // Button
	50002: RoleCheckBox,    // CheckBox
	50003: RoleComboBox,    // ComboBox
	50004: RoleTextField,   // Edit
	50005: RoleLink,        // Hyperlink
	50006: RoleImage,       // Image
	50007: RoleListItem,    // ListItem
	50008: RoleList,        // List
	50009: RoleMenu,        // Menu
	50010: RoleMenuBar,     // MenuBar
	50011: RoleMenuItem,    // MenuItem
	50012: RoleProgressBar, // ProgressBar
	50013: RoleRadioButton, // RadioButton
	50014: RoleScrollBar,   // ScrollBar
	50015: RoleSlider,      // Slider
	50016: RoleSpinButton,  // Spinner
	50018: RoleTabList,     // Tab
	50019: RoleTab,         // TabItem
	50020: RoleStaticText,  // Text
	50021: RoleToolbar,     // ToolBar
	50023: RoleTree,        // Tree
	50024: RoleTreeItem,    // TreeItem
	50026: RoleGroup,       // Group
	50028: RoleTable,       // DataGrid
	50029: RoleListItem,    // DataItem
	50030: RoleDocument,    // Document
	50031: RoleButton,      // SplitButton
	50032: RoleWindow,      // Window
	50033: RoleGroup,       // Pane
	50036: RoleTable,       // Table
}

func lookupRole[K comparable](table map[K]Role, native K) Role {
	if role, ok := table[native]; ok {
		return role
	}
	return RoleUnknown
}

// MapAXRole converts a macOS role/subrole pair. The subrole wins when it
// carries its own meaning (secure text fields, dialogs).
func MapAXRole(role, subrole string) Role {
	if r, ok := axSubroleMap[subrole]; ok {
		return r
	}
	return lookupRole(AXRoleMap, role)
}

// MapATSPIRole converts an AT-SPI role enum value.
func MapATSPIRole(role uint32) Role {
	return lookupRole(ATSPIRoleMap, role)
}

// MapUIAControlType converts a UI Automation control type id.
func MapUIAControlType(controlType int32) Role {
	return lookupRole(UIAControlTypeMap, controlType)
}

// DefaultActions is the action set assumed for a role when a backend cannot
// enumerate actions itself.
func DefaultActions(role Role) []Action {
	switch role {
	case RoleButton, RoleCheckBox, RoleRadioButton, RoleToggleButton, RoleLink, RoleMenuItem, RoleTab:
		return []Action{Press(), Focus()}
	case RoleTextField, RolePasswordField, RoleComboBox:
		return []Action{Focus(), {Type: ActionSetValue}}
	case RoleSlider, RoleSpinButton:
		return []Action{Focus(), Increment(), Decrement()}
	case RoleScrollArea:
		return []Action{{Type: ActionScroll}}
	default:
		return []Action{Focus()}
	}
}
