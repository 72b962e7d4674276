package core

import "fmt"

// Code identifies a row error or advisory status. Codes are stable strings so
// reports and trackers can match on them.
type Code string

// Fatal row errors. Any of these prevents the row from being committed.
const (
	CodeInvalidUsername       Code = "invalidusername"
	CodeHostIDNotNumeric      Code = "mnethostidnotanumber"
	CodeIDNotNumeric          Code = "useridnotanumber"
	CodeDeleteMissingTarget   Code = "usernotdeletedmissing"
	CodeDeleteDisallowed      Code = "usernotdeletedoff"
	CodeDeleteProtected       Code = "usernotdeletedadmin"
	CodeGuestProtected        Code = "guestnoeditprofileother"
	CodeMissingField          Code = "missingfield"
	CodeUpdateDisallowed      Code = "userexistsupdatenotallowed"
	CodeCreateDisallowed      Code = "usernotexistscreatenotallowed"
	CodeRenameTargetExists    Code = "usernotrenamedexists"
	CodeRenameRequiresUpdate  Code = "usernotupdatederror"
	CodeRenameSourceMissing   Code = "usernotrenamedmissing"
	CodeRenameDisallowed      Code = "usernotrenamedoff"
	CodeIDConflict            Code = "idnumberalreadyexists"
	CodeCannotModifyAdmin     Code = "usernotupdatedadmin"
	CodeUserAlreadyRegistered Code = "usernotaddedregistered"
	CodeUserNotAdded          Code = "usernotaddederror"
	CodeUserMissingUpdateOnly Code = "usernotexistcreatenotallowed"
	CodeUpdateModeNothing     Code = "updatemodedoessettonothing"
	CodeEmailDuplicate        Code = "useremailduplicate"
	CodeAuthPluginUnavailable Code = "userauthpluginunavailable"
	CodeDeleteFailed          Code = "usernotdeletederror"
	CodeCreateFailed          Code = "errorcreatinguser"
	CodeUpdateFailed          Code = "errorupdatinguser"
)

// Advisory statuses. They never block a commit.
const (
	CodeInvalidEmail        Code = "invalidemail"
	CodeUnknownLocale       Code = "cannotfindlang"
	CodeUnsupportedAuth     Code = "userauthunsupported"
	CodeRenamed             Code = "userrenamed"
	CodeUserAdded           Code = "useradded"
	CodeAccountUpdated      Code = "useraccountupdated"
	CodeUserDeleted         Code = "userdeleted"
	CodeUserSuspended       Code = "usersuspended"
	CodeForcePasswordChange Code = "forcepasswordchange"
	CodePasswordUnchanged   Code = "passwordnotupdatedexternal"
	CodeSessionsNotCleared  Code = "sessionsnotcleared"
	CodePreferenceNotSet    Code = "preferencenotset"
	CodeCohortCreated       Code = "cohortcreated"
	CodeCohortError         Code = "cohortnotcreatederror"
	CodeRoleError           Code = "unknownrole"
	CodeEnrolError          Code = "usernotenrollederror"
	CodeUnknownEnrolStatus  Code = "unknownenrolstatus"
	CodeInvalidEnrolPeriod  Code = "invalidenrolperiod"
)

var fatalCodes = map[Code]bool{
	CodeInvalidUsername:       true,
	CodeHostIDNotNumeric:      true,
	CodeIDNotNumeric:          true,
	CodeDeleteMissingTarget:   true,
	CodeDeleteDisallowed:      true,
	CodeDeleteProtected:       true,
	CodeGuestProtected:        true,
	CodeMissingField:          true,
	CodeUpdateDisallowed:      true,
	CodeCreateDisallowed:      true,
	CodeRenameTargetExists:    true,
	CodeRenameRequiresUpdate:  true,
	CodeRenameSourceMissing:   true,
	CodeRenameDisallowed:      true,
	CodeIDConflict:            true,
	CodeCannotModifyAdmin:     true,
	CodeUserAlreadyRegistered: true,
	CodeUserNotAdded:          true,
	CodeUserMissingUpdateOnly: true,
	CodeUpdateModeNothing:     true,
	CodeAuthPluginUnavailable: true,
	CodeDeleteFailed:          true,
	CodeCreateFailed:          true,
	CodeUpdateFailed:          true,
}

// IsFatal reports whether code always blocks a row from being committed.
// CodeEmailDuplicate is fatal or advisory depending on the policy.
func (c Code) IsFatal() bool { return fatalCodes[c] }

var codeMessages = map[Code]string{
	CodeInvalidUsername:       "Invalid username",
	CodeHostIDNotNumeric:      "Host id is not a number",
	CodeIDNotNumeric:          "User id is not a number",
	CodeDeleteMissingTarget:   "Error deleting user: user does not exist",
	CodeDeleteDisallowed:      "User not deleted: deleting is not allowed",
	CodeDeleteProtected:       "Can not delete admin or guest accounts",
	CodeGuestProtected:        "Can not modify the guest account",
	CodeUpdateDisallowed:      "User already exists, update not allowed",
	CodeCreateDisallowed:      "User does not exist and creating is not allowed",
	CodeRenameTargetExists:    "User not renamed: username already exists",
	CodeRenameRequiresUpdate:  "User not renamed: updates are not allowed",
	CodeRenameSourceMissing:   "User not renamed: old user not found",
	CodeRenameDisallowed:      "User not renamed: renaming is not allowed",
	CodeIDConflict:            "Id already assigned to another user",
	CodeCannotModifyAdmin:     "Can not update admin accounts",
	CodeUserAlreadyRegistered: "User not added: already registered",
	CodeUserNotAdded:          "User not added: error",
	CodeUserMissingUpdateOnly: "User does not exist, creating is not allowed",
	CodeUpdateModeNothing:     "Update mode does not allow any changes",
	CodeEmailDuplicate:        "Duplicate email address",
	CodeAuthPluginUnavailable: "Auth plugin is not available",
	CodeDeleteFailed:          "Error deleting user",
	CodeCreateFailed:          "Error creating user",
	CodeUpdateFailed:          "Error updating user",
	CodeInvalidEmail:          "Invalid email address",
	CodeUnknownLocale:         "Unknown language, field ignored",
	CodeUnsupportedAuth:       "Auth plugin does not support user management",
	CodeUserAdded:             "New user",
	CodeAccountUpdated:        "User updated",
	CodeUserDeleted:           "User deleted",
	CodeUserSuspended:         "User suspended",
	CodeForcePasswordChange:   "Password change forced",
	CodePasswordUnchanged:     "Password not updated: external auth",
	CodeSessionsNotCleared:    "Existing sessions could not be cleared",
	CodePreferenceNotSet:      "User preference could not be saved",
	CodeCohortCreated:         "Cohort created",
	CodeCohortError:           "Cohort membership not added",
	CodeRoleError:             "System role not changed",
	CodeEnrolError:            "User not enrolled",
	CodeUnknownEnrolStatus:    "Unknown enrolment status",
	CodeInvalidEnrolPeriod:    "Invalid enrolment period",
}

// Text returns the default human readable text for a code.
func (c Code) Text() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return string(c)
}

func (c Code) status() Status {
	return Status{Code: c, Message: c.Text()}
}

func (c Code) withDetail(format string, args ...any) Status {
	return Status{Code: c, Message: c.Text() + ": " + fmt.Sprintf(format, args...)}
}

func missingField(field string) Status {
	return Status{Code: CodeMissingField, Message: "Missing field: " + field}
}

func renamed(from, to string) Status {
	return Status{Code: CodeRenamed, Message: fmt.Sprintf("User renamed from %s to %s", from, to)}
}
