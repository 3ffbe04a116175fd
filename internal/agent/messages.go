package agent

import "fmt"

// Outbound reply catalog, keyed by language then message key. The staff
// member's language wins, falling back to the restaurant language and then
// English. Button IDs stay stable across languages; only titles localize.

const (
	langEN = "en"
	langFR = "fr"
	langAR = "ar"
)

// Interactive button ids the classifier maps back to answers.
const (
	btnTaskYes  = "task_yes"
	btnTaskNo   = "task_no"
	btnTaskHelp = "task_help"
	btnTaskSkip = "task_skip"

	// Reply buttons on shift reminder notifications.
	btnClockInNow  = "clock_in_now"
	btnClockOutNow = "clock_out_now"
)

const (
	msgUnknownUser       = "unknown_user"
	msgClockInLocation   = "clock_in_location"
	msgClockInSuccess    = "clock_in_success"
	msgAlreadyClockedIn  = "already_clocked_in"
	msgNotClockedIn      = "not_clocked_in"
	msgClockOutSuccess   = "clock_out_success"
	msgOutsideGeofence   = "outside_geofence"
	msgNoActiveShift     = "no_active_shift"
	msgShiftEnded        = "shift_ended"
	msgChecklistIntro    = "checklist_intro"
	msgChecklistNone     = "checklist_none"
	msgTaskPrompt        = "task_prompt"
	msgTaskPhotoPrompt   = "task_photo_prompt"
	msgTaskPhotoSaved    = "task_photo_saved"
	msgFollowupPrompt    = "followup_prompt"
	msgHelpTextPrompt    = "help_text_prompt"
	msgHelpNoted         = "help_noted"
	msgTaskSkipped       = "task_skipped"
	msgChecklistComplete = "checklist_complete"
	msgChecklistStopped  = "checklist_stopped"
	msgFeedbackPrompt    = "feedback_prompt"
	msgFeedbackThanks    = "feedback_thanks"
	msgFeedbackInvalid   = "feedback_invalid"
	msgIncidentPrompt    = "incident_prompt"
	msgIncidentAck       = "incident_ack"
	msgVoiceFailed       = "voice_failed"
	msgSomethingWrong    = "something_wrong"
	msgUnrecognized      = "unrecognized"
	msgBtnYes            = "btn_yes"
	msgBtnNo             = "btn_no"
	msgBtnHelp           = "btn_help"
	msgBtnSkip           = "btn_skip"
)

var catalogs = map[string]map[string]string{
	langEN: {
		msgUnknownUser:       "This number is not registered with any restaurant team. Please ask your manager to add your phone number to your profile.",
		msgClockInLocation:   "To clock in, please share your location so we can confirm you are at the restaurant. Tap the button below.",
		msgClockInSuccess:    "You're clocked in at %s. Have a great shift! ✅",
		msgAlreadyClockedIn:  "You're already clocked in. Send \"clock out\" when your shift ends.",
		msgNotClockedIn:      "You're not clocked in right now.",
		msgClockOutSuccess:   "You're clocked out. Worked %s today. See you next time! 👋",
		msgOutsideGeofence:   "You appear to be %.0f m from %s (limit %.0f m). Please get closer to the restaurant and share your location again.",
		msgNoActiveShift:     "You don't have a shift scheduled right now. Check the app for your upcoming schedule.",
		msgShiftEnded:        "Your shift has ended, so the checklist was closed.",
		msgChecklistIntro:    "You have %d task(s) on your checklist for this shift. Let's go through them.",
		msgChecklistNone:     "No checklist tasks for this shift.",
		msgTaskPrompt:        "Task %d of %d: *%s*\n%s\nIs it done?",
		msgTaskPhotoPrompt:   "Task %d of %d: *%s*\n%s\nPlease send a photo as verification.",
		msgTaskPhotoSaved:    "Photo received, task verified. ✅",
		msgFollowupPrompt:    "Noted. Do you need help with \"%s\", or should we skip it for now?",
		msgHelpTextPrompt:    "Tell me what's blocking you and I'll pass it to your manager.",
		msgHelpNoted:         "Got it, your note was saved for the manager. Moving on.",
		msgTaskSkipped:       "Task skipped. Moving on.",
		msgChecklistComplete: "Checklist complete, nice work! 🎉",
		msgChecklistStopped:  "Checklist closed.",
		msgFeedbackPrompt:    "How was your shift today? Reply with a rating from 1 (rough) to 5 (great).",
		msgFeedbackThanks:    "Thanks for the feedback! 🙏",
		msgFeedbackInvalid:   "Please reply with a number from 1 to 5.",
		msgIncidentPrompt:    "Describe the incident in a message or a voice note and I'll open a ticket for your manager.",
		msgIncidentAck:       "Incident reported, ticket %s. Your manager has been notified.",
		msgVoiceFailed:       "I couldn't process that voice note. Please type the incident description instead.",
		msgSomethingWrong:    "Sorry, something went wrong on our side. Please try again in a moment.",
		msgUnrecognized:      "I didn't catch that. You can send:\n• \"clock in\" / \"clock out\"\n• \"checklist\" to review your tasks\n• \"report\" to report an incident",
		msgBtnYes:            "Yes, done",
		msgBtnNo:             "Not yet",
		msgBtnHelp:           "I need help",
		msgBtnSkip:           "Skip it",
	},
	langFR: {
		msgUnknownUser:       "Ce numéro n'est enregistré dans aucune équipe. Demandez à votre manager d'ajouter votre numéro à votre profil.",
		msgClockInLocation:   "Pour pointer, partagez votre position afin de confirmer que vous êtes au restaurant. Appuyez sur le bouton ci-dessous.",
		msgClockInSuccess:    "Pointage enregistré chez %s. Bon service ! ✅",
		msgAlreadyClockedIn:  "Vous avez déjà pointé. Envoyez « pointage sortie » à la fin de votre service.",
		msgNotClockedIn:      "Vous n'avez pas encore pointé.",
		msgClockOutSuccess:   "Sortie enregistrée. %s travaillées aujourd'hui. À bientôt ! 👋",
		msgOutsideGeofence:   "Vous êtes à %.0f m de %s (limite %.0f m). Rapprochez-vous du restaurant et partagez votre position à nouveau.",
		msgNoActiveShift:     "Aucun service prévu pour le moment. Consultez l'application pour votre planning.",
		msgShiftEnded:        "Votre service est terminé, la checklist a été fermée.",
		msgChecklistIntro:    "Vous avez %d tâche(s) sur votre checklist. Passons-les en revue.",
		msgChecklistNone:     "Aucune tâche pour ce service.",
		msgTaskPrompt:        "Tâche %d sur %d : *%s*\n%s\nEst-ce fait ?",
		msgTaskPhotoPrompt:   "Tâche %d sur %d : *%s*\n%s\nEnvoyez une photo comme vérification.",
		msgTaskPhotoSaved:    "Photo reçue, tâche vérifiée. ✅",
		msgFollowupPrompt:    "Compris. Besoin d'aide pour « %s », ou on la saute pour l'instant ?",
		msgHelpTextPrompt:    "Dites-moi ce qui bloque et je transmettrai à votre manager.",
		msgHelpNoted:         "Noté, votre message a été transmis au manager. On continue.",
		msgTaskSkipped:       "Tâche sautée. On continue.",
		msgChecklistComplete: "Checklist terminée, bravo ! 🎉",
		msgChecklistStopped:  "Checklist fermée.",
		msgFeedbackPrompt:    "Comment s'est passé votre service ? Répondez avec une note de 1 (difficile) à 5 (super).",
		msgFeedbackThanks:    "Merci pour votre retour ! 🙏",
		msgFeedbackInvalid:   "Merci de répondre avec un chiffre de 1 à 5.",
		msgIncidentPrompt:    "Décrivez l'incident par message ou note vocale et j'ouvrirai un ticket pour votre manager.",
		msgIncidentAck:       "Incident signalé, ticket %s. Votre manager a été prévenu.",
		msgVoiceFailed:       "Impossible de traiter cette note vocale. Merci de décrire l'incident par écrit.",
		msgSomethingWrong:    "Désolé, une erreur s'est produite de notre côté. Merci de réessayer dans un instant.",
		msgUnrecognized:      "Je n'ai pas compris. Vous pouvez envoyer :\n• « pointage » / « pointage sortie »\n• « checklist » pour vos tâches\n• « signaler » pour un incident",
		msgBtnYes:            "Oui, fait",
		msgBtnNo:             "Pas encore",
		msgBtnHelp:           "Besoin d'aide",
		msgBtnSkip:           "Passer",
	},
	langAR: {
		msgUnknownUser:       "هذا الرقم غير مسجل في أي فريق مطعم. يرجى الطلب من مديرك إضافة رقم هاتفك إلى ملفك.",
		msgClockInLocation:   "لتسجيل الدخول، شارك موقعك لتأكيد وجودك في المطعم. اضغط على الزر أدناه.",
		msgClockInSuccess:    "تم تسجيل دخولك في %s. وردية موفقة! ✅",
		msgAlreadyClockedIn:  "لقد سجلت دخولك بالفعل. أرسل \"خروج\" عند نهاية ورديتك.",
		msgNotClockedIn:      "لم تسجل دخولك بعد.",
		msgClockOutSuccess:   "تم تسجيل خروجك. عملت %s اليوم. إلى اللقاء! 👋",
		msgOutsideGeofence:   "يبدو أنك على بعد %.0f متر من %s (الحد %.0f متر). اقترب من المطعم وشارك موقعك مرة أخرى.",
		msgNoActiveShift:     "ليس لديك وردية مجدولة الآن. راجع التطبيق لمعرفة جدولك.",
		msgShiftEnded:        "انتهت ورديتك، لذلك أُغلقت قائمة المهام.",
		msgChecklistIntro:    "لديك %d مهمة في قائمة مهام هذه الوردية. لنراجعها معاً.",
		msgChecklistNone:     "لا توجد مهام لهذه الوردية.",
		msgTaskPrompt:        "المهمة %d من %d: *%s*\n%s\nهل أُنجزت؟",
		msgTaskPhotoPrompt:   "المهمة %d من %d: *%s*\n%s\nأرسل صورة كإثبات.",
		msgTaskPhotoSaved:    "تم استلام الصورة والتحقق من المهمة. ✅",
		msgFollowupPrompt:    "مفهوم. هل تحتاج مساعدة في \"%s\" أم نتجاوزها الآن؟",
		msgHelpTextPrompt:    "أخبرني ما الذي يعيقك وسأنقله إلى مديرك.",
		msgHelpNoted:         "تم حفظ ملاحظتك للمدير. لنتابع.",
		msgTaskSkipped:       "تم تجاوز المهمة. لنتابع.",
		msgChecklistComplete: "اكتملت قائمة المهام، عمل رائع! 🎉",
		msgChecklistStopped:  "أُغلقت قائمة المهام.",
		msgFeedbackPrompt:    "كيف كانت ورديتك اليوم؟ أرسل تقييماً من 1 (صعبة) إلى 5 (رائعة).",
		msgFeedbackThanks:    "شكراً على تقييمك! 🙏",
		msgFeedbackInvalid:   "يرجى الرد برقم من 1 إلى 5.",
		msgIncidentPrompt:    "صف الحادثة برسالة أو رسالة صوتية وسأفتح تذكرة لمديرك.",
		msgIncidentAck:       "تم تسجيل الحادثة، التذكرة %s. تم إخطار مديرك.",
		msgVoiceFailed:       "تعذر معالجة الرسالة الصوتية. يرجى كتابة وصف الحادثة.",
		msgSomethingWrong:    "عذراً، حدث خطأ من جهتنا. يرجى المحاولة مرة أخرى بعد قليل.",
		msgUnrecognized:      "لم أفهم. يمكنك إرسال:\n• \"دخول\" / \"خروج\"\n• \"مهام\" لمراجعة مهامك\n• \"بلاغ\" للإبلاغ عن حادثة",
		msgBtnYes:            "نعم، تمت",
		msgBtnNo:             "ليس بعد",
		msgBtnHelp:           "أحتاج مساعدة",
		msgBtnSkip:           "تجاوز",
	},
}

// text renders a catalog message in the given language, falling back to
// English for unknown languages and missing keys.
func text(lang, key string, args ...any) string {
	m, ok := catalogs[lang]
	if !ok {
		m = catalogs[langEN]
	}
	tmpl, ok := m[key]
	if !ok {
		tmpl = catalogs[langEN][key]
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}
