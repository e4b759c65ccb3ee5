package i18n

var ko = Messages{
	KeyCommentCount:       "댓글 {count}개",
	KeyPlaceholder:        "댓글을 입력하세요",
	KeyReplyPlaceholder:   "답글을 입력하세요",
	KeySubmit:             "등록",
	KeySave:               "저장",
	KeyCancel:             "취소",
	KeyReply:              "답글",
	KeyEdit:               "수정",
	KeyDelete:             "삭제",
	KeyShowReplies:        "답글 {count}개",
	KeyHideReplies:        "답글 숨기기",
	KeyNoComments:         "첫 번째 댓글을 남겨주세요.",
	KeyLoading:            "불러오는 중...",
	KeyLoginRequired:      "댓글을 작성하려면 로그인이 필요합니다.",
	KeyLogin:              "로그인",
	KeyConfirmDelete:      "정말 삭제하시겠습니까?",
	KeyManager:            "관리자",
	KeyEdited:             "수정됨",
	KeyPrev:               "이전",
	KeyNext:               "다음",
	KeyJustNow:            "방금 전",
	KeyMinutesAgo:         "{minutes}분 전",
	KeyHoursAgo:           "{hours}시간 전",
	KeyDaysAgo:            "{days}일 전",
	KeyMonthsAgo:          "{months}개월 전",
	KeyYearsAgo:           "{years}년 전",
	KeyErrorOccurred:      "오류가 발생했습니다. 다시 시도해주세요.",
	KeyAnonymousNickname:  "익명",
	KeyDeletedPlaceholder: "삭제된 댓글입니다.",
}

var en = Messages{
	KeyCommentCount:       "{count} comments",
	KeyPlaceholder:        "Write a comment",
	KeyReplyPlaceholder:   "Write a reply",
	KeySubmit:             "Post",
	KeySave:               "Save",
	KeyCancel:             "Cancel",
	KeyReply:              "Reply",
	KeyEdit:               "Edit",
	KeyDelete:             "Delete",
	KeyShowReplies:        "{count} replies",
	KeyHideReplies:        "Hide replies",
	KeyNoComments:         "Be the first to comment.",
	KeyLoading:            "Loading...",
	KeyLoginRequired:      "Please log in to write a comment.",
	KeyLogin:              "Log in",
	KeyConfirmDelete:      "Are you sure you want to delete this comment?",
	KeyManager:            "Manager",
	KeyEdited:             "edited",
	KeyPrev:               "Previous",
	KeyNext:               "Next",
	KeyJustNow:            "just now",
	KeyMinutesAgo:         "{minutes} minutes ago",
	KeyHoursAgo:           "{hours} hours ago",
	KeyDaysAgo:            "{days} days ago",
	KeyMonthsAgo:          "{months} months ago",
	KeyYearsAgo:           "{years} years ago",
	KeyErrorOccurred:      "Something went wrong. Please try again.",
	KeyAnonymousNickname:  "Anonymous",
	KeyDeletedPlaceholder: "This comment has been deleted.",
}
